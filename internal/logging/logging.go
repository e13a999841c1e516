// internal/logging/logging.go
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/od-approval-backend/internal/config"
)

// New builds the process logger. Production defaults to JSON output and
// LOG_FORMAT overrides either way.
func New(cfg *config.Config) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	format := cfg.Log.Format
	if format == "" && cfg.IsProduction() {
		format = "json"
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger.WithField("service", "od-approval")
}
