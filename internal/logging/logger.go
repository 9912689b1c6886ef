// Package logging builds the process-wide logrus logger from config.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a configured logrus logger. Non-development environments
// log JSON for ingestion; development keeps the text formatter.
func New(logLevel, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if environment != "development" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
