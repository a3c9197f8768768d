// Package logging provides the shared logger constructor.
package logging

import "github.com/sirupsen/logrus"

// NewLogger returns the service-wide logger configuration.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}
