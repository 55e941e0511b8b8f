package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Production environments emit JSON lines for
// log shipping; everything else gets human-readable output. Unknown levels
// fall back to info rather than failing startup.
func New(level, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(ParseLevel(level))
	if strings.EqualFold(environment, "production") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// ParseLevel converts a config string to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
