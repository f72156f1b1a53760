package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askChatID string

var askCmd = &cobra.Command{
	Use:   "ask [--chat id] <message>",
	Short: "Ask a question in a chat",
	Long: `Ask one question and print the reply. Without --chat a new chat is
started; with --chat the saved chat is resumed, document included.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChatID, "chat", "", "id of the chat to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if askChatID != "" {
		res, err := a.service.LoadChat(ctx, askChatID)
		if err != nil {
			return fmt.Errorf("failed to load chat: %w", err)
		}
		if !res.Found {
			return fmt.Errorf("chat %s not found", askChatID)
		}
	}

	res, err := a.service.Chat(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printReply(cmd.OutOrStdout(), res)
	return nil
}
