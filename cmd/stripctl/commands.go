package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/stripgate/internal/audit"
	"github.com/nerrad567/stripgate/internal/kasa"
	"github.com/nerrad567/stripgate/internal/power"
)

// options holds the persistent flags shared by every device command.
type options struct {
	port         int
	timeout      time.Duration
	retries      int
	delay        time.Duration
	outputFormat string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "stripctl",
		Short: "Control Kasa power strip outlets",
		Long: `A command line client for Kasa multi-outlet power strips.

Outlets are numbered from 1 in physical order. Failed device operations are
retried with a fixed delay before giving up.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().IntVar(&opts.port, "port", kasa.DefaultPort, "Strip control port")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Timeout for each device attempt")
	rootCmd.PersistentFlags().IntVar(&opts.retries, "retries", power.DefaultMaxAttempts, "Total attempts per operation")
	rootCmd.PersistentFlags().DurationVar(&opts.delay, "delay", power.DefaultRetryDelay, "Wait between attempts")
	rootCmd.PersistentFlags().StringVar(&opts.outputFormat, "format", "text", "Output format (text, json)")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newSwitchCmd(opts, power.StateOn),
		newSwitchCmd(opts, power.StateOff),
		newAuditCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// controller builds a fresh controller from the flags.
func (o *options) controller() *power.Controller {
	client := kasa.NewClient(kasa.Config{
		Port:           o.port,
		ConnectTimeout: o.timeout,
		IOTimeout:      o.timeout,
	})
	cache := power.NewSessionCache(power.NewKasaConnector(client))
	return power.NewController(cache, power.ControllerConfig{
		Retry: power.RetryPolicy{
			MaxAttempts:    o.retries,
			Delay:          o.delay,
			AttemptTimeout: o.timeout,
		},
	})
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <address>",
		Short: "Show every outlet of a strip",
		Example: `  stripctl status 10.0.0.5
  stripctl status 10.0.0.5 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.controller().Status(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reading strip %s: %w", args[0], err)
			}
			if opts.outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", status.Alias, status.IP)
			for _, o := range status.Outlets {
				fmt.Fprintf(out, "  %d. %-20s %s\n", o.PlugNumber, o.Alias, o.State)
			}
			return nil
		},
	}
}

func newSwitchCmd(opts *options, state power.State) *cobra.Command {
	return &cobra.Command{
		Use:     string(state) + " <address> <outlet>",
		Short:   "Switch an outlet " + string(state),
		Example: fmt.Sprintf("  stripctl %s 10.0.0.5 2", state),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outlet, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("outlet must be a number, got %q", args[1])
			}

			result, err := opts.controller().Execute(cmd.Context(), power.Command{
				Address: args[0],
				Outlet:  outlet,
				State:   state,
				Source:  audit.SourceCLI,
			})
			if err != nil {
				return fmt.Errorf("switching outlet %d of %s %s: %w", outlet, args[0], state, err)
			}
			if opts.outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (outlet %d of %s): %s\n",
				result.Alias, result.PlugNumber, result.IP, result.State)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stripctl %s (commit: %s)\n", version, commit)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
