package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [message]",
	Short: "Start a new chat",
	Long: `Start a new chat and print its id. A chat is saved with its first
message, so pass a message to start the conversation right away.`,
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))

	a, err := newApp(message != "")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	chatID, err := a.service.NewChat(ctx)
	if err != nil {
		return fmt.Errorf("failed to start chat: %w", err)
	}

	if message == "" {
		// Nothing is stored yet, so the id cannot be resumed by a later command
		fmt.Fprintf(cmd.OutOrStdout(), "Started chat %s (saved with its first message)\n", chatID)
		fmt.Fprintln(cmd.OutOrStdout(), "Run `docchat new <message>` to start a chat that can be resumed with --chat.")
		return nil
	}

	res, err := a.service.Chat(ctx, message)
	if err != nil {
		return err
	}
	printReply(cmd.OutOrStdout(), res)
	return nil
}
