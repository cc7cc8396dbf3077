// Package logging builds the service logger and the HTTP request logger.
package logging

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout at the given level. Development gets
// human readable text; every other environment gets JSON. The package level
// logrus logger is configured the same way so library code can use it.
func New(level, env string) (*log.Logger, error) {
	return newLogger(os.Stdout, level, env)
}

func newLogger(out io.Writer, level, env string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "logging: bad level %q", level)
	}

	var formatter log.Formatter = &log.JSONFormatter{}
	if env == "development" {
		formatter = &log.TextFormatter{FullTimestamp: true}
	}

	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(formatter)

	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetFormatter(formatter)
	return logger, nil
}

// RequestLogger logs one line per HTTP request through chi's RequestLogger.
func RequestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&requestFormatter{logger: logger})
}

type requestFormatter struct {
	logger log.FieldLogger
}

func (f *requestFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	fields := log.Fields{
		"method":     r.Method,
		"url":        r.URL.String(),
		"remoteAddr": r.RemoteAddr,
		"userAgent":  r.UserAgent(),
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		fields["requestId"] = id
	}
	return &requestEntry{logger: f.logger.WithFields(fields)}
}

type requestEntry struct {
	logger log.FieldLogger
}

func (e *requestEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := e.logger.WithFields(log.Fields{
		"status":  status,
		"bytes":   bytes,
		"elapsed": elapsed.String(),
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("request served")
		return
	}
	entry.Info("request served")
}

func (e *requestEntry) Panic(v interface{}, stack []byte) {
	e.logger.WithFields(log.Fields{
		"panic": v,
		"stack": string(stack),
	}).Error("request panicked")
}
