package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/app"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/logger"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	internalhttp "github.com/lomoval/otus-golang/calendar_notifier/internal/server/http"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/storagebuilder"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const envConfigPrefix = "$env:"

const defaultTemplate = "📅 {{title}}\n⏰ {{time}}\n📍 {{location}}"

type CalendarConfig struct {
	Type            string
	CredentialsPath string
	TokenPath       string
	CalendarID      string
	URL             string
	HorizonHours    int
	Timezone        string
}

type NotificationsConfig struct {
	CheckInterval     string
	NotifyBefore      []int
	MessageTemplate   string
	TimeLayout        string
	Destination       string
	RunOnStart        bool
	SendRatePerMinute int
}

type TimeoutsConfig struct {
	Fetch  time.Duration
	Send   time.Duration
	Ledger time.Duration
}

type SenderConfig struct {
	Type string
}

type Config struct {
	Logger        logger.Config
	Calendar      CalendarConfig
	Notifications NotificationsConfig
	Timeouts      TimeoutsConfig
	Sender        SenderConfig
	Rabbit        rabbit.Config
	Storage       storagebuilder.Config
	Server        internalhttp.Config

	// unsetEnv maps config keys to the $env: variables that were not set.
	unsetEnv map[string]string
}

func NewConfig(configFile string) (Config, error) {
	config := Config{}
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetDefault("logger.level", "WARN")
	v.SetDefault("logger.format", "text")
	v.SetDefault("calendar.tokenPath", "./token.json")
	v.SetDefault("calendar.calendarId", "primary")
	v.SetDefault("calendar.horizonHours", 48)
	v.SetDefault("calendar.timezone", "UTC")
	v.SetDefault("notifications.checkInterval", "*/30 * * * *")
	v.SetDefault("notifications.notifyBefore", []int{60})
	v.SetDefault("notifications.messageTemplate", defaultTemplate)
	v.SetDefault("notifications.timeLayout", "15:04")
	v.SetDefault("notifications.runOnStart", true)
	v.SetDefault("notifications.sendRatePerMinute", 60)
	v.SetDefault("timeouts.fetch", "30s")
	v.SetDefault("timeouts.send", "15s")
	v.SetDefault("timeouts.ledger", "5s")
	v.SetDefault("sender.type", "log")
	v.SetDefault("rabbit.host", "127.0.0.1")
	v.SetDefault("rabbit.port", 5672)
	v.SetDefault("rabbit.user", "user")
	v.SetDefault("rabbit.password", "pass")
	v.SetDefault("rabbit.queue", "calendar.notify")
	v.SetDefault("storage.storageType", "sqlite")
	v.SetDefault("storage.sqlite.path", "./notifications.db")
	v.SetDefault("storage.retentionDays", 30)
	v.SetDefault("storage.purgeSchedule", "@daily")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8007)

	err := v.ReadInConfig()
	if err != nil {
		return config, fmt.Errorf("failed to read config %q: %w", configFile, err)
	}
	unsetEnv := make(map[string]string)
	keys := v.AllKeys()
	for _, key := range keys {
		env := v.GetString(key)
		if !strings.HasPrefix(env, envConfigPrefix) {
			continue
		}
		name := env[len(envConfigPrefix):]
		// viper falls back to the literal "$env:NAME" when the variable is unset or empty.
		if val, ok := os.LookupEnv(name); !ok || val == "" {
			v.Set(key, "")
			unsetEnv[key] = name
			continue
		}
		err := v.BindEnv(key, name)
		if err != nil {
			return config, fmt.Errorf("failed to prepare config: %w", err)
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	config.unsetEnv = unsetEnv
	return config, nil
}

func (c Config) required(key, value string) error {
	if value != "" {
		return nil
	}
	if name, ok := c.unsetEnv[strings.ToLower(key)]; ok {
		return fmt.Errorf("%s is required: environment variable %s is not set", key, name)
	}
	return fmt.Errorf("%s is required", key)
}

// Validate checks everything the poll loop needs. Any error is fatal at startup.
func (c Config) Validate() error {
	var errs []error

	switch c.Calendar.Type {
	case "google":
		errs = append(errs,
			c.required("calendar.credentialsPath", c.Calendar.CredentialsPath),
			c.required("calendar.tokenPath", c.Calendar.TokenPath))
	case "ics":
		errs = append(errs, c.required("calendar.url", c.Calendar.URL))
	default:
		errs = append(errs, fmt.Errorf("unknown calendar.type %q", c.Calendar.Type))
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid calendar.timezone: %w", err))
	}

	errs = append(errs, c.required("notifications.destination", c.Notifications.Destination))
	if len(c.Notifications.NotifyBefore) == 0 {
		errs = append(errs, errors.New("notifications.notifyBefore must list at least one offset"))
	}
	for _, lead := range c.Notifications.NotifyBefore {
		if lead <= 0 {
			errs = append(errs, fmt.Errorf("notifications.notifyBefore: offset %d must be positive", lead))
		}
	}
	errs = append(errs, c.required("notifications.messageTemplate", c.Notifications.MessageTemplate))
	if _, err := cron.ParseStandard(c.Notifications.CheckInterval); err != nil {
		errs = append(errs, fmt.Errorf("invalid notifications.checkInterval: %w", err))
	}

	switch c.Sender.Type {
	case "log":
	case "rabbit":
		errs = append(errs,
			c.required("rabbit.host", c.Rabbit.Host),
			c.required("rabbit.user", c.Rabbit.User),
			c.required("rabbit.password", c.Rabbit.Password),
			c.required("rabbit.queue", c.Rabbit.Queue))
	default:
		errs = append(errs, fmt.Errorf("unknown sender.type %q", c.Sender.Type))
	}

	if c.Storage.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retentionDays must not be negative"))
	}
	if c.Storage.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.Storage.PurgeSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid storage.purgeSchedule: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) AppConfig() app.Config {
	return app.Config{
		Destination:       c.Notifications.Destination,
		Offsets:           c.Notifications.NotifyBefore,
		Template:          c.Notifications.MessageTemplate,
		Location:          c.Location(),
		TimeLayout:        c.Notifications.TimeLayout,
		RetentionDays:     c.Storage.RetentionDays,
		SendRatePerMinute: c.Notifications.SendRatePerMinute,
		FetchTimeout:      c.Timeouts.Fetch,
		SendTimeout:       c.Timeouts.Send,
		LedgerTimeout:     c.Timeouts.Ledger,
	}
}

func (c Config) RunnerConfig() app.RunnerConfig {
	return app.RunnerConfig{
		CheckSchedule: c.Notifications.CheckInterval,
		PurgeSchedule: c.Storage.PurgeSchedule,
		RunOnStart:    c.Notifications.RunOnStart,
		Location:      c.Location(),
	}
}
