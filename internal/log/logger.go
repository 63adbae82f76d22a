// SPDX-License-Identifier: MIT
/*
Package log is the application-wide leveled logging facade, backed by
logrus. It exists so the rest of the codebase logs through one small
surface and so the backend can be swapped without touching call sites.

Nothing in this package may be called from the audio processing path: the
backend allocates and may block on I/O. Engine code logs from setup,
teardown, and control paths only.
*/
package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	logger.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the global log level from a string (case-insensitive:
// debug, info, warn, error). Unknown strings leave the level unchanged.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	}
}

// WithField returns an entry carrying one structured field.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

// WithFields returns an entry carrying several structured fields.
func WithFields(fields map[string]any) *logrus.Entry {
	return logger.WithFields(logrus.Fields(fields))
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) { logger.Debugf(format, args...) }

// Infof logs a formatted info message.
func Infof(format string, args ...any) { logger.Infof(format, args...) }

// Warnf logs a formatted warning message.
func Warnf(format string, args ...any) { logger.Warnf(format, args...) }

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }

// Fatalf logs a formatted fatal message and exits.
func Fatalf(format string, args ...any) { logger.Fatalf(format, args...) }
