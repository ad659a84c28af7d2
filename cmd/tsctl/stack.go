package main

import (
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/taskstack/internal/monitor"
	"github.com/spf13/cobra"
)

var monitorInterval time.Duration

var measuresCmd = &cobra.Command{
	Use:   "measures",
	Short: "Show the measures of monitored tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		measures, err := newClient().Measures(ctx)
		if err != nil {
			return err
		}
		if len(measures) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No monitored tasks.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), measuresTable(measures))
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Publish every visible primitive to the visualizer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().Render(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Primitives rendered")
		return nil
	},
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Work with stack manifests",
}

var stackApplyCmd = &cobra.Command{
	Use:   "apply FILE",
	Short: "Apply a TOML stack manifest",
	Long: `Send a stack manifest to the controller. Use - to read from stdin.

Examples:
  tsctl stack apply stack.toml
  cat stack.toml | tsctl stack apply -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().ApplyStack(ctx, data); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stack applied")
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of the control loop and monitored tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		model := monitor.NewModel(newClient(), monitorInterval)
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		return err
	},
}

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", time.Second, "refresh interval")

	stackCmd.AddCommand(stackApplyCmd)
	rootCmd.AddCommand(measuresCmd, renderCmd, stackCmd, monitorCmd)
}
