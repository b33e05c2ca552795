package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/app"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar/google"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/calendar/ics"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/metrics"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/sender"
	internalhttp "github.com/lomoval/otus-golang/calendar_notifier/internal/server/http"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storagebuilder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 3 * time.Second

func newRunCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the calendar and send due reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single poll cycle and exit")
	return cmd
}

func run(once bool) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	ledger, err := storagebuilder.New(config.Storage)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ledger.Close(ctx); err != nil {
			log.Errorf("failed to close ledger: %v", err)
		}
	}()

	source, err := newSource(config.Calendar, config.Location())
	if err != nil {
		return err
	}
	snd, closeSender, err := newSender(config)
	if err != nil {
		return err
	}
	defer closeSender()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	notifier := app.New(source, ledger, snd, config.AppConfig(), app.WithMetrics(metrics.New(registry)))

	if once {
		res, err := notifier.RunCycle(ctx, time.Now())
		if err != nil {
			return err
		}
		log.Infof("cycle finished: fetched %d, due %d, sent %d, failed %d", res.Fetched, res.Due, res.Sent, res.Failed)
		return nil
	}

	if config.Server.Enabled {
		server := internalhttp.NewServer(config.Server, notifier, registry)
		go func() {
			if err := server.Start(ctx); err != nil {
				log.Errorf("failed to start http server: %v", err)
				cancel()
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				log.Errorf("failed to stop http server: %v", err)
			}
		}()
	}

	runner := app.NewRunner(notifier, config.RunnerConfig())
	if err := runner.Start(ctx); err != nil {
		return err
	}
	log.Infof("notifier is running, schedule %q", config.Notifications.CheckInterval)

	<-ctx.Done()
	log.Info("shutting down")
	runner.Stop()
	return nil
}

func newSource(config CalendarConfig, loc *time.Location) (calendar.Source, error) {
	switch config.Type {
	case "google":
		// Token refresh must outlive the signal context.
		s, err := google.New(context.Background(), google.Config{
			CredentialsPath: config.CredentialsPath,
			TokenPath:       config.TokenPath,
			CalendarID:      config.CalendarID,
			HorizonHours:    config.HorizonHours,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "ics":
		return ics.New(ics.Config{URL: config.URL, HorizonHours: config.HorizonHours, Location: loc}, nil), nil
	default:
		return nil, fmt.Errorf("unknown calendar type %s", config.Type)
	}
}

func newSender(config Config) (sender.Sender, func(), error) {
	switch config.Sender.Type {
	case "log":
		return sender.LogSender{}, func() {}, nil
	case "rabbit":
		r := rabbit.New(config.Rabbit)
		if err := r.Connect(true); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to rabbit: %w", err)
		}
		return sender.NewRabbit(r), r.Close, nil
	default:
		return nil, nil, errors.New("unknown sender type " + config.Sender.Type)
	}
}
