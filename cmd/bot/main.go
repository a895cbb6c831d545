package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tg_roster_bot/internal/config"
	"tg_roster_bot/internal/logging"
)

const (
	storeConnectTimeout     = 10 * time.Second
	storeCloseTimeout       = 5 * time.Second
	ownerBootstrapTimeout   = 5 * time.Second
	webhookRegisterTimeout  = 10 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	httpShutdownTimeout     = 5 * time.Second
	importTimeout           = 5 * time.Minute
)

var processStart = time.Now()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "bot",
		Short:         "Telegram bot for querying and managing the group roster",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve, newImportCmd(), newConfigCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the redacted configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}

			logging.Info("configuration check", logging.Fields{"event": "config_only"})
			fmt.Fprintln(cmd.OutOrStdout(), "configuration check: ok")
			fmt.Fprintln(cmd.OutOrStdout(), config.FormatRedacted(cfg))
			return nil
		},
	}
}

// loadRuntime resolves configuration and the process logger. Failures are
// reported on stderr since logging may not be configured yet.
func loadRuntime() (config.Config, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return config.Config{}, nil, err
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		return config.Config{}, nil, err
	}

	return cfg, logger, nil
}
