// Command fetchbotd runs the fetchbot daemon in the foreground. It behaves
// like `fetchbot run` for service managers that want a dedicated binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fetchbot/internal/config"
	"fetchbot/internal/daemonrun"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func newCommand() *cobra.Command {
	var configPath, logLevel string
	cmd := &cobra.Command{
		Use:           "fetchbotd",
		Short:         "Run the fetchbot daemon in the foreground",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel, Version: version})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fetchbotd:", err)
		os.Exit(1)
	}
}
