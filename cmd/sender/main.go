package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/logger"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "./configs/sender.yaml", "Path to configuration file")
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	flag.Parse()

	config, err := NewConfig(configFile)
	if err != nil {
		log.Errorf("failed to start %v", err)
		os.Exit(1)
	}
	err = logger.PrepareLogger(config.Logger)
	if err != nil {
		log.Errorf("failed to start %v", err)
		os.Exit(1)
	}

	r := rabbit.New(config.Rabbit)
	if err := r.Connect(false); err != nil {
		log.Errorf("failed to connect to rabbit: %v", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	log.Infof("consuming reminders from %s", config.Rabbit.Queue)
	if err := r.Consume(ctx, deliver); err != nil {
		log.Errorf("consumer stopped: %v", err)
	}
}

// deliver hands a queued reminder to its destination. Undecodable messages
// are dropped so they do not circle the queue forever.
func deliver(msg amqp.Delivery) error {
	m := rabbit.Message{}
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		log.Errorf("dropping malformed message: %v", err)
		return nil
	}
	log.WithFields(log.Fields{
		"id":          m.ID,
		"destination": m.Destination,
		"created":     m.CreatedAt,
	}).Infof("delivering reminder:\n%s", m.Text)
	return nil
}
