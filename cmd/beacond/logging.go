package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func parseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// configureLogger creates a logger from the --log-level flag. The fallback
// level differs per command: one-shot tooling wants quiet.
func configureLogger(cmd *cobra.Command, fallback logrus.Level) (*logrus.Logger, error) {
	logLevel := fallback

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		var err error
		logLevel, err = parseLogLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}

// overrideLogLevel applies the --log-level flag on top of a logger built
// from the config file.
func overrideLogLevel(cmd *cobra.Command, logger *logrus.Logger) error {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr == "" {
		return nil
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}
