package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load populates the given struct from environment variables using
// `env` struct tags, applying `envDefault` values for unset variables.
//
// Example:
//
//	type Config struct {
//	    HTTPPort     int    `env:"HTTP_PORT" envDefault:"8010"`
//	    SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
