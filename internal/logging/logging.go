// Package logging builds the logrus logger shared by the service, the CLI
// and the front ends.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects level, format ("text" or "json") and output ("stderr",
// "stdout" or a file path). Empty fields take the defaults.
type Config struct {
	Level  string
	Format string
	Output string
}

// New builds a logger. The returned closer releases a log file, if one was
// opened; it is never nil.
func New(cfg Config) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	closer := func() error { return nil }

	level := logrus.InfoLevel
	if cfg.Level != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, closer, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, closer, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closer, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f.Close
	}
	log.SetOutput(out)
	return log, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
