package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func Load() (*config, error) {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg config
	if err := envconfig.Process("", &cfg.Exchange); err != nil {
		return nil, fmt.Errorf("exchange config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Risk); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Pairs); err != nil {
		return nil, fmt.Errorf("pair config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Interval); err != nil {
		return nil, fmt.Errorf("interval config: %w", err)
	}

	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk config: %w", err)
	}

	return &cfg, nil
}
