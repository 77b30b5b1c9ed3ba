package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging builds the process logger: JSON to stdout, info unless
// LOG_LEVEL says otherwise.
func SetupLogging() *logrus.Logger {
	level := logrus.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	logger := logrus.Logger{
		Formatter: &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyLevel: "loglevel",
			},
		},
		Out:   os.Stdout,
		Level: level,
	}

	return &logger
}
