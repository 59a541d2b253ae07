package observability

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger writing to stderr. format is "json" or
// "text"; an unknown level falls back to info.
func NewLogger(level, format string) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}
