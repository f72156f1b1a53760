package cli

import (
	"fmt"

	"github.com/harun/docchat/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docchat background service",
	Long: `Run the docchat background service in the foreground until interrupted.
It ingests documents dropped into the inbox directory, sweeps the session
store on the janitor schedule and serves Prometheus metrics when enabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	daemon.Version = GetVersion()
	d, err := daemon.New(a.cfg, a.log, a.service, a.store)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "docchat is running (PID file: %s)\n", d.Lifecycle().PIDFile())
	if a.cfg.Documents.InboxDir != "" {
		fmt.Fprintf(out, "Inbox: %s\n", a.cfg.Documents.InboxDir)
	}
	if addr := d.MetricsAddr(); addr != "" {
		fmt.Fprintf(out, "Metrics: http://%s/metrics\n", addr)
	}

	if err := d.Wait(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(out, "docchat stopped")
	return nil
}
