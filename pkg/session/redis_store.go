package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// RedisClient is the subset of Redis operations the session store needs.
// Get returns ErrNotFound for missing keys.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// GoRedisClient adapts a go-redis client to RedisClient
type GoRedisClient struct {
	rdb *redis.Client
}

// RedisOptions selects the Redis server
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewGoRedisClient connects to Redis. Addr may also be a redis:// URL.
func NewGoRedisClient(opts RedisOptions) *GoRedisClient {
	options, err := redis.ParseURL(opts.Addr)
	if err != nil {
		options = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}
	return &GoRedisClient{rdb: redis.NewClient(options)}
}

// Ping checks that the server is reachable
func (c *GoRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (c *GoRedisClient) Set(ctx context.Context, key string, value string) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

func (c *GoRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys walks the keyspace with SCAN rather than KEYS
func (c *GoRedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *GoRedisClient) Close() error {
	return c.rdb.Close()
}

// RedisStore keeps each session as one JSON string value
type RedisStore struct {
	client RedisClient
	prefix string
	logger zerolog.Logger
}

// RedisStoreOption configures a RedisStore
type RedisStoreOption func(*RedisStore)

// WithPrefix sets the key prefix for session keys
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client RedisClient, logger zerolog.Logger, opts ...RedisStoreOption) *RedisStore {
	observability.EnsureRegistered()

	s := &RedisStore{
		client: client,
		prefix: "docchat:session:",
		logger: logger.With().Str("component", "redis_store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Save replaces the stored value with a single SET
func (s *RedisStore) Save(ctx context.Context, sess *Session) (err error) {
	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "redis_store.save",
		attribute.String("session_id", sess.ID),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionSave("redis", time.Since(start), err == nil)
	}()

	if err := ValidateID(sess.ID); err != nil {
		return tracing.FailSpan(span, err)
	}

	record, err := encodeRecord(sess)
	if err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: sess.ID, Err: err})
	}

	if err := s.client.Set(ctx, s.key(sess.ID), string(record)); err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: sess.ID, Err: err})
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Msg("Session saved")
	return nil
}

// Load reads and validates the stored value
func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "redis_store.load",
		attribute.String("session_id", id),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateID(id); err != nil {
		return nil, tracing.FailSpan(span, err)
	}

	sess, err := s.read(ctx, id)
	if err != nil {
		var corrupt *CorruptDataError
		if errors.As(err, &corrupt) {
			observability.RecordCorruptSession()
			logger := tracing.LoggerFromContext(ctx, s.logger)
			logger.Warn().Err(err).Msg("Stored session is corrupt")
		}
		return nil, tracing.FailSpan(span, err)
	}
	return sess, nil
}

func (s *RedisStore) read(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(id))
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", ID: id, Err: err}
	}
	return decodeRecord(id, []byte(data))
}

// ListSummaries scans the prefix and decodes every value
func (s *RedisStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "redis_store.list")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	keys, err := s.client.Keys(ctx, s.prefix+"*")
	if err != nil {
		return nil, tracing.FailSpan(span, &PersistenceError{Op: "list", Err: fmt.Errorf("redis scan: %w", err)})
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, s.prefix)
		if ValidateID(id) != nil {
			continue
		}

		sess, err := s.read(ctx, id)
		if err != nil {
			var corrupt *CorruptDataError
			if errors.As(err, &corrupt) {
				observability.RecordCorruptSession()
			}
			logger.Warn().Str("session_id", id).Err(err).Msg("Skipping unreadable session")
			continue
		}
		summaries = append(summaries, sess.Summary())
	}

	SortSummaries(summaries)
	observability.SetStoredSessions(len(summaries))

	return summaries, nil
}

// Exists reports whether a value is stored under id
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	ok, err := s.client.Exists(ctx, s.key(id))
	if err != nil {
		return false, &PersistenceError{Op: "exists", ID: id, Err: err}
	}
	return ok, nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
