package main

import (
	"fmt"
	"os"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/logger"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	release   = "UNKNOWN"
	buildDate = "UNKNOWN"
	gitHash   = "UNKNOWN"
)

var configFile string

func init() {
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Errorf("notifier failed: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Sends reminders before upcoming calendar events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "./configs/notifier.yaml", "Path to configuration file")

	root.AddCommand(
		newRunCmd(),
		newLedgerCmd(),
		newAuthorizeCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file and sets up logging. Validation is left to the commands.
func loadConfig() (Config, error) {
	config, err := NewConfig(configFile)
	if err != nil {
		return config, err
	}
	if err := logger.PrepareLogger(config.Logger); err != nil {
		return config, err
	}
	return config, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "release: %s\nbuild date: %s\ngit hash: %s\n", release, buildDate, gitHash)
			return err
		},
	}
}
