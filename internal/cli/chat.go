package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harun/docchat/pkg/chatbot"
	"github.com/spf13/cobra"
)

var chatChatID string

var chatCmd = &cobra.Command{
	Use:   "chat [--chat id]",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat on the terminal. Besides questions, the prompt
accepts these commands:

  /new            start a new chat
  /attach <file>  upload a document into a new chat
  /load <id>      resume a saved chat
  /list           list saved chats
  /history        print the current chat
  /quit           leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatChatID, "chat", "", "id of the chat to resume")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if chatChatID != "" {
		res, err := a.service.LoadChat(ctx, chatChatID)
		if err != nil {
			return fmt.Errorf("failed to load chat: %w", err)
		}
		if !res.Found {
			return fmt.Errorf("chat %s not found", chatChatID)
		}
		printHistory(out, res)
	}

	return runREPL(ctx, a.service, cmd.InOrStdin(), out)
}

// runREPL reads questions and commands from in until EOF or /quit
func runREPL(ctx context.Context, svc *chatbot.Service, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Ask a question, or type /attach <file>, /new, /load <id>, /list, /history or /quit.")

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleREPLCommand(ctx, svc, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := svc.Chat(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, res.Reply)
	}

	return scanner.Err()
}

func handleREPLCommand(ctx context.Context, svc *chatbot.Service, line string, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		chatID, err := svc.NewChat(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Started chat %s\n", chatID)

	case "/attach":
		if arg == "" {
			return false, fmt.Errorf("usage: /attach <file>")
		}
		up, err := svc.UploadFile(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Attached %s (%d characters) to chat %s\n", up.Filename, up.Chars, up.ChatID)

	case "/load":
		if arg == "" {
			return false, fmt.Errorf("usage: /load <id>")
		}
		res, err := svc.LoadChat(ctx, arg)
		if err != nil {
			return false, err
		}
		if !res.Found {
			return false, fmt.Errorf("chat %s not found", arg)
		}
		printHistory(out, res)

	case "/list":
		summaries, err := svc.ListChats(ctx)
		if err != nil {
			return false, err
		}
		return false, printSummaries(out, summaries, false)

	case "/history":
		chatID, ok := svc.ActiveChat()
		if !ok {
			fmt.Fprintln(out, "No active chat")
			return false, nil
		}
		printHistory(out, &chatbot.LoadResult{Found: true, ChatID: chatID, Messages: svc.History()})

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}

	return false, nil
}
