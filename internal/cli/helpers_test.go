package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// completionStub answers every chat completion call with reply and keeps
// the messages of each request.
type completionStub struct {
	*httptest.Server
	mu       sync.Mutex
	reply    string
	requests [][]map[string]any
}

func newCompletionStub(t *testing.T, reply string) *completionStub {
	t.Helper()
	stub := &completionStub{reply: reply}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Messages []map[string]any `json:"messages"`
		}
		_ = json.Unmarshal(raw, &body)

		stub.mu.Lock()
		stub.requests = append(stub.requests, body.Messages)
		content := stub.reply
		stub.mu.Unlock()

		encoded, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"gen-1","object":"chat.completion","created":1700000000,"model":"test-model",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, encoded)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *completionStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *completionStub) lastMessages(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

// writeTestConfig writes a config using a file store under a temp data dir
// and returns its path.
func writeTestConfig(t *testing.T, baseURL string, mutate func(cfg map[string]any)) string {
	t.Helper()
	dir := t.TempDir()

	// Keep the process environment from supplying a key
	for _, key := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "DOCCHAT_COMPLETION_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := map[string]any{
		"completion": map[string]any{
			"provider": "openai",
			"api_key":  "sk-test",
			"base_url": baseURL + "/api/v1",
			"model":    "test-model",
		},
		"storage": map[string]any{
			"backend": "file",
			"dir":     filepath.Join(dir, "chats"),
		},
		"logging": map[string]any{
			"level":      "debug",
			"file":       filepath.Join(dir, "docchat.log"),
			"audit_file": filepath.Join(dir, "audit.log"),
		},
		"janitor":  map[string]any{"schedule": ""},
		"data_dir": dir,
	}
	if mutate != nil {
		mutate(cfg)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(dir, "docchat.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// executeCommand runs the root command with args and stdin and returns
// everything written to stdout and stderr.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel = "", ""
	askChatID, chatChatID, listJSON = "", "", false
	stopTimeout = 30
	resetHelpFlags(GetRootCmd())

	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// resetHelpFlags clears --help and --version left set by an earlier Execute
func resetHelpFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" || f.Name == "version" {
			_ = f.Value.Set("false")
		}
	})
	for _, c := range cmd.Commands() {
		resetHelpFlags(c)
	}
}

var chatIDPattern = regexp.MustCompile(`chat_\d+_[0-9a-z]{8}`)

func extractChatID(t *testing.T, output string) string {
	t.Helper()
	id := chatIDPattern.FindString(output)
	require.NotEmpty(t, id, "no chat id in output: %s", output)
	return id
}
