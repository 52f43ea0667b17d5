package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/soulprintlabs/soulprint-backend/internal/logger"
)

func GetEnv(key, fallback string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("env var unset, using default", "env_var", key, "default", fallback)
		}
		return fallback
	}
	return val
}

func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("env var unset, using default", "env_var", key, "default", fallback)
		}
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Warn("env var is not an int, using default", "env_var", key, "value", raw, "default", fallback)
		}
		return fallback
	}
	return n
}

// GetEnvAsDuration accepts Go duration strings ("90s", "2m").
func GetEnvAsDuration(key string, fallback time.Duration, log *logger.Logger) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("env var unset, using default", "env_var", key, "default", fallback)
		}
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		if log != nil {
			log.Warn("env var is not a duration, using default", "env_var", key, "value", raw, "default", fallback)
		}
		return fallback
	}
	return d
}
