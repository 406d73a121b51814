package config

import (
	"log/slog"
	"os"

	"github.com/subosito/gotenv"
)

// LoadEnv loads .env.<env> when APP_ENV is set, falling back to a plain
// .env and finally the OS environment.
func LoadEnv(env string) {
	envFile := ".env"
	if env != "" {
		envFile = ".env." + env
	}
	if err := gotenv.Load(envFile); err != nil {
		slog.Debug("No .env file found, using OS environment",
			slog.String("file", envFile))
	}
}

// Getenv returns the value of key or fallback when unset.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
