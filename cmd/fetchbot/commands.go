package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fetchbot/internal/daemonctl"
	"fetchbot/internal/daemonrun"
	"fetchbot/internal/ipc"
	"fetchbot/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var dev bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: dev,
				Version:     version,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Include source locations in log output")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Status)
				}
				out := cmd.OutOrStdout()
				for _, line := range statusLines(resp.Status, shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queued and running jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Jobs)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No live jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "User", "State", "Progress", "Title", "Format"},
					jobRows(resp.Jobs), 1, 3,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Outcomes) == 0 {
					fmt.Fprintln(out, "No finished jobs recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Finished", "Result", "Title", "Format", "Size", "Took"},
					historyRows(resp.Outcomes, time.Now()), 4, 5,
				))
				fmt.Fprintln(out, "Totals:", historySummary(resp.Counts))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of outcomes to show")
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim ephemeral files left by finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sweep()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Removed %d stale entries\n", len(resp.Removed))
				for _, path := range resp.Removed {
					fmt.Fprintln(out, "  "+path)
				}
				if len(resp.Errors) > 0 {
					return errors.New("sweep incomplete: " + strings.Join(resp.Errors, "; "))
				}
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a live job by ID or unique ID suffix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CancelJob(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s (user %d, %s)\n", shortID(resp.Job.ID), resp.Job.UserID, resp.Job.State)
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonctl.StopAndTerminate(ctx.daemonPaths(), grace)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop within %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait before killing the daemon")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.launchOptions(logLevel)
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.daemonPaths(), opts, wait)
			if err != nil {
				return err
			}
			printStartResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the daemon socket")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var grace, wait time.Duration
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if it is running, then start it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.launchOptions("")
			if err != nil {
				return err
			}
			paths := ctx.daemonPaths()
			if _, err := daemonctl.StopAndTerminate(paths, grace); err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			result, err := daemonctl.EnsureStarted(paths, opts, wait)
			if err != nil {
				return err
			}
			printStartResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait before killing the old daemon")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the new daemon socket")
	return cmd
}

func printStartResult(cmd *cobra.Command, result daemonctl.StartResult) {
	out := cmd.OutOrStdout()
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
	default:
		fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
	}
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries without contacting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			for _, line := range dependencyLines(statuses, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			for _, status := range statuses {
				if !status.Available && !status.Optional {
					return errors.New("required dependencies are missing")
				}
			}
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
