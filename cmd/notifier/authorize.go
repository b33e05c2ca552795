package main

import (
	"errors"
	"os"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar/google"
	"github.com/spf13/cobra"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Obtain and store the Google Calendar OAuth token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			if config.Calendar.CredentialsPath == "" {
				return errors.New("calendar.credentialsPath is required")
			}
			return google.Authorize(cmd.Context(), config.Calendar.CredentialsPath, config.Calendar.TokenPath, os.Stdin, cmd.OutOrStdout())
		},
	}
}
