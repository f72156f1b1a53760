package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harun/docchat/pkg/chatbot"
	"github.com/harun/docchat/pkg/session"
)

const timeLayout = "2006-01-02 15:04:05"

func printReply(out io.Writer, res *chatbot.ChatResult) {
	fmt.Fprintln(out, res.Reply)
	fmt.Fprintf(out, "\n[chat %s]\n", res.ChatID)
}

func printSummaries(out io.Writer, summaries []session.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved chats")
		return nil
	}

	fmt.Fprintf(out, "%-28s  %-19s  %8s  %s\n", "CHAT", "LAST UPDATED", "MESSAGES", "DOCUMENT")
	for _, s := range summaries {
		doc := "no"
		if s.HasDocument {
			doc = "yes"
		}
		fmt.Fprintf(out, "%-28s  %-19s  %8d  %s\n", s.ID, s.LastUpdated.Local().Format(timeLayout), s.MessageCount, doc)
	}
	return nil
}

func printHistory(out io.Writer, res *chatbot.LoadResult) {
	header := fmt.Sprintf("Chat %s", res.ChatID)
	if res.HasDocument {
		header += " (document attached)"
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, strings.Repeat("-", len(header)))

	if len(res.Messages) == 0 {
		fmt.Fprintln(out, "(no messages)")
		return
	}
	for _, m := range res.Messages {
		fmt.Fprintf(out, "[%s] %s: %s\n", formatTime(m.CreatedAt), m.Role, m.Content)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
