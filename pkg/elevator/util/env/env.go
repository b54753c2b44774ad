// Package env reads the dispatcher settings that deployments may override from the environment, such as the
// ground floor and the hall call TTL.
//
// An override never fails startup. A variable that is missing or cannot be parsed leaves the compiled-in default in
// place, and the fallback is logged so a mistyped value is visible in the dispatcher's startup log.
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
)

func override[T any](key string, fallback T, parse func(string) (T, error), logger logr.Logger) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		logger.Info("No environment override, keeping default", "key", key, "default", fallback)
		return fallback
	}

	v, err := parse(raw)
	if err != nil {
		logger.Info(fmt.Sprintf("Ignoring environment override that is not a valid %T", fallback),
			"key", key, "rawValue", raw, "error", err, "default", fallback)
		return fallback
	}

	logger.Info("Applied environment override", "key", key, "value", v)
	return v
}

// GetEnvInt returns the integer in key, such as a floor number, or defaultVal.
func GetEnvInt(key string, defaultVal int, logger logr.Logger) int {
	return override(key, defaultVal, strconv.Atoi, logger)
}

// GetEnvDuration returns the Go duration in key, e.g. "90s", or defaultVal.
func GetEnvDuration(key string, defaultVal time.Duration, logger logr.Logger) time.Duration {
	return override(key, defaultVal, time.ParseDuration, logger)
}
