package main

import (
	"github.com/spf13/cobra"
)

const (
	groupDaemon = "daemon"
	groupJobs   = "jobs"
	groupSetup  = "setup"
)

func newRootCommand() *cobra.Command {
	var socketFlag, configFlag string
	ctx := newCommandContext(&socketFlag, &configFlag)

	root := &cobra.Command{
		Use:           "fetchbot",
		Short:         "Telegram bot that fetches media from links and sends it back",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}
	root.PersistentFlags().StringVar(&socketFlag, "socket", "", "Daemon control socket (default <state_dir>/fetchbot.sock)")
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddGroup(
		&cobra.Group{ID: groupDaemon, Title: "Daemon:"},
		&cobra.Group{ID: groupJobs, Title: "Jobs:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	addGrouped(root, groupDaemon,
		newRunCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
		newLogsCommand(ctx),
	)
	addGrouped(root, groupJobs,
		newJobsCommand(ctx),
		newCancelCommand(ctx),
		newHistoryCommand(ctx),
		newSweepCommand(ctx),
	)
	addGrouped(root, groupSetup,
		newConfigCommand(ctx),
		newDepsCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return root
}

func addGrouped(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}
