package infrastructures

import (
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
}

// NewLogger configures the process logger from cfg. The standard logrus
// logger gets the same settings so package-level logrus calls match.
func NewLogger(cfg *AppConfig) *logrus.Logger {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(level)
	return logger
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	return logger
}
