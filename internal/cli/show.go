package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.LoadChat(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}
	if !res.Found {
		return fmt.Errorf("chat %s not found", args[0])
	}

	printHistory(cmd.OutOrStdout(), res)
	return nil
}
