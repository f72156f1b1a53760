package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the list as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.service.ListChats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	return printSummaries(cmd.OutOrStdout(), summaries, listJSON)
}
