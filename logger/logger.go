// Package logger builds the logrus entries shared by every unit of the service.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Base returns an entry tagged with the service name.
func Base(service string) *logrus.Entry {
	return base.WithField("service", service)
}

// SetLevel changes the level of every entry derived from Base.
// Unknown levels leave the current level untouched and are reported as an error.
func SetLevel(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// LogError logs err under msg with the given entry.
func LogError(err error, msg string, entry *logrus.Entry) {
	if err == nil {
		return
	}
	entry.WithError(err).Error(msg)
}
