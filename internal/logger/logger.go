// Package logger carries a request-scoped logrus entry through context.
package logger

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = logrus.NewEntry(logrus.StandardLogger())

// Setup configures the standard logger. Production logs are JSON.
func Setup(level string, production bool) {
	l := logrus.StandardLogger()
	l.SetOutput(os.Stdout)
	if production {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
}

func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// GetLogger returns the entry stored in ctx, or the base logger.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	return base
}
