package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ytdlder/ytdlder/internal/log"
)

// ParseString reads a string environment variable or returns the default.
// The chosen source is logged at debug level.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	if isSensitive(key) {
		logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	}
	return v
}

// ParseInt reads an integer environment variable, falling back to the
// default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseDuration reads a Go duration (e.g. "5m") from the environment,
// falling back to the default on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

// ParseBool reads a boolean environment variable. It accepts "true",
// "false", "1", "0", "yes", "no" case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		logger.Warn().Str("key", key).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "secret") || strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "key")
}
