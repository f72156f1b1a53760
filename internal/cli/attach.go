package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach <file> [question]",
	Short: "Upload a document into a new chat",
	Long: `Extract the text of a PDF, DOCX or TXT file, start a new chat and attach
the document to it. An optional question is asked right away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args[1:], " "))

	a, err := newApp(question != "")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	up, err := a.service.UploadFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Attached %s (%d characters) to chat %s\n", up.Filename, up.Chars, up.ChatID)

	if question == "" {
		return nil
	}

	res, err := a.service.Chat(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printReply(out, res)
	return nil
}
