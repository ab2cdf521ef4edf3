package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
}

// Defaults holds the environment-provided defaults, used to seed the
// command-line flags in cmd/server.
type Defaults struct {
	ServerAddr     string   `env:"POKER_ADDR" envDefault:"localhost:8000"`
	SigningSecret  string   `env:"POKER_SIGNING_SECRET"`
	AllowedOrigins []string `env:"POKER_ALLOWED_ORIGINS" envSeparator:","`
}

// FromEnv reads configuration defaults from the process environment.
func FromEnv() (Defaults, error) {
	var d Defaults
	if err := env.Parse(&d); err != nil {
		return Defaults{}, fmt.Errorf("parse environment: %w", err)
	}
	return d, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}, nil
}
