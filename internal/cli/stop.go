package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/harun/docchat/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the docchat background service",
	Long: `Stop the docchat background service gracefully.
Sends SIGTERM to docchat serve and waits for it to shut down.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the service to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
	if !lm.IsRunning() {
		fmt.Fprintln(out, "docchat is not running")
		return nil
	}

	if err := lm.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !lm.IsRunning() {
			fmt.Fprintln(out, "docchat stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := lm.Signal(syscall.SIGKILL); err != nil {
		return err
	}
	if err := lm.Stop(); err != nil {
		return err
	}
	fmt.Fprintln(out, "docchat killed")
	return nil
}
