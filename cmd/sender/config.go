package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lomoval/otus-golang/calendar_notifier/internal/logger"
	"github.com/lomoval/otus-golang/calendar_notifier/internal/rabbit"
	"github.com/spf13/viper"
)

const envConfigPrefix = "$env:"

type Config struct {
	Logger logger.Config
	Rabbit rabbit.Config
}

func NewConfig(configFile string) (Config, error) {
	config := Config{}
	viper.SetConfigFile(configFile)

	viper.SetDefault("logger.level", "WARN")
	viper.SetDefault("logger.format", "text")
	viper.SetDefault("rabbit.host", "127.0.0.1")
	viper.SetDefault("rabbit.port", 5672)
	viper.SetDefault("rabbit.queue", "calendar.notify")

	err := viper.ReadInConfig()
	if err != nil {
		return config, fmt.Errorf("failed to read config %q: %w", configFile, err)
	}
	for _, key := range viper.AllKeys() {
		env := viper.GetString(key)
		if !strings.HasPrefix(env, envConfigPrefix) {
			continue
		}
		name := env[len(envConfigPrefix):]
		if val, ok := os.LookupEnv(name); !ok || val == "" {
			return config, fmt.Errorf("%s: environment variable %s is not set", key, name)
		}
		err := viper.BindEnv(key, name)
		if err != nil {
			return config, fmt.Errorf("failed to prepare config: %w", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	return config, nil
}
