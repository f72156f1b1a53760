package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/harun/docchat/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show background service status",
	Long:  `Show whether docchat serve is running and how many chats are saved.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
	if !lm.IsRunning() {
		fmt.Fprintln(out, "Status: stopped")
	} else {
		pid, err := lm.GetPID()
		if err != nil {
			return fmt.Errorf("failed to read PID file: %w", err)
		}

		fmt.Fprintf(out, "Status: running\n")
		fmt.Fprintf(out, "PID: %d\n", pid)

		// PID file modification time approximates the start time
		if info, err := os.Stat(lm.PIDFile()); err == nil {
			fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
		}
	}

	fmt.Fprintf(out, "Storage: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "Provider: %s (%s)\n", cfg.Completion.Provider, cfg.Completion.Model)
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
