package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/getsentry/repro/internal/config"
	"github.com/sirupsen/logrus"
)

// InitLogger builds the logrus logger shared by the harness binaries.
func InitLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("unable to parse log level %q: %w", cfg.Level, err)
	}
	log.Level = level

	switch cfg.Format {
	case "json", "":
		log.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	case "text":
		log.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	log.Out = out
	return log, nil
}
