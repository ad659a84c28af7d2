// Package main implements tsctl, the command-line client for the taskstackd
// admin API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/monitor"
	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL of the taskstackd HTTP server
	serverURL string
	// requestTimeout bounds each API call
	requestTimeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tsctl",
	Short: "CLI for the taskstackd controller",
	Long: `tsctl manages the tasks and geometric primitives of a running taskstackd
controller and shows its state.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9190", "taskstackd server URL")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 5*time.Second, "request timeout")
	rootCmd.AddCommand(healthCmd)
}

func newClient() *monitor.Client {
	return monitor.NewClient(serverURL)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

// healthCmd checks controller health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check taskstackd health",
	Long: `Show the controller id, registry sizes, loop counters and telemetry state.

Examples:
  tsctl health
  tsctl health --server http://10.0.0.5:9190`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	health, err := newClient().Health(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Controller: %s\n", health.ControllerID)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	fmt.Fprintf(out, "Tasks:      %d\n", health.Counts.Tasks)
	fmt.Fprintf(out, "Primitives: %d\n", health.Counts.Primitives)
	if health.Loop != nil {
		fmt.Fprintf(out, "Cycles:     %d (%d failed)\n", health.Loop.Cycles, health.Loop.Failures)
	}
	if t := health.Telemetry; t != nil {
		state := "healthy"
		if !t.Healthy || t.Degraded {
			state = "degraded"
		}
		fmt.Fprintf(out, "Telemetry:  %s\n", state)
	}
	return nil
}
