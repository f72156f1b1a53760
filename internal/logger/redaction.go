package logger

import (
	"io"
	"regexp"
	"sync"
)

const redacted = "[REDACTED]"

// minSecretLen keeps short configured values from blanking out ordinary words.
const minSecretLen = 6

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks credentials in log lines.
type Redactor struct {
	mu    sync.RWMutex
	rules []rule
}

// NewRedactor returns a redactor for provider API keys, bearer tokens and
// credential fields, plus any literal secrets given.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{
		rules: []rule{
			// OpenRouter (sk-or-v1-...), OpenAI and Anthropic (sk-ant-...) keys
			{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._~+/=-]+`), "${1}" + redacted},
			{regexp.MustCompile(`(?i)("?(?:api_key|x-api-key|redis_password|password|secret)"?\s*[:=]\s*"?)[^\s",}]+`), "${1}" + redacted},
		},
	}
	for _, s := range secrets {
		r.AddSecret(s)
	}
	return r
}

// AddSecret masks every later occurrence of value. Values shorter than six
// characters are ignored.
func (r *Redactor) AddSecret(value string) {
	if len(value) < minSecretLen {
		return
	}
	re := regexp.MustCompile(regexp.QuoteMeta(value))

	r.mu.Lock()
	r.rules = append(r.rules, rule{re, redacted})
	r.mu.Unlock()
}

// Redact returns s with every credential masked.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shortened
// line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.writer, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
