// Package config contains the configuration loading logic of the service.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the service configuration. Leaving both Razorpay keys empty
// disables live payment and activates the simulation checkout path.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	RazorpayKeyID     string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `env:"RAZORPAY_KEY_SECRET"`
	RazorpayCurrency  string `env:"RAZORPAY_CURRENCY"`
	TokenSecret       string `env:"ACCESS_TOKEN_SECRET"`
	CORSOrigin        string `env:"CORS_ORIGIN"`
}

// Parse reads the configuration from command-line flags and environment
// variables. Environment values take precedence over flags.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCurrency := cfg.RazorpayCurrency

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RazorpayCurrency, "c", "INR", "payment gateway currency code")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCurrency != "" {
		cfg.RazorpayCurrency = envCurrency
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RazorpayCurrency == "" {
		cfg.RazorpayCurrency = "INR"
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = "kaapi-store-secret"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:3000"
	}

	return cfg, nil
}

// GatewayConfigured reports whether both Razorpay keys are present.
func (c *Config) GatewayConfigured() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}
