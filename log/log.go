// Package log writes diagnostics to a daily file under the logs directory.
// Nothing is written unless logs.write is set.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lessontrack/lessontrack/filesystem"
	"github.com/lessontrack/lessontrack/key"
	"github.com/lessontrack/lessontrack/where"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	logger  = newMuted()
	enabled bool
)

func newMuted() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Fields is an alias so callers do not need to import logrus directly.
type Fields = logrus.Fields

// Setup opens today's log file and applies logs.level and logs.json.
func Setup() error {
	enabled = viper.GetBool(key.LogsWrite)
	if !enabled {
		logger = newMuted()
		return nil
	}

	path := filepath.Join(where.Logs(), time.Now().Format(time.DateOnly)+".log")
	f, err := filesystem.API().OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	return configure(f)
}

func configure(out io.Writer) error {
	l := logrus.New()
	l.SetOutput(out)

	if viper.GetBool(key.LogsJson) {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(viper.GetString(key.LogsLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	logger = l
	enabled = true
	return nil
}

// With returns an entry carrying fields such as the session a message belongs to.
func With(fields Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

func Error(args ...any) {
	if enabled {
		logger.Error(args...)
	}
}

func Errorf(format string, args ...any) {
	if enabled {
		logger.Errorf(format, args...)
	}
}

func Warnf(format string, args ...any) {
	if enabled {
		logger.Warnf(format, args...)
	}
}

func Infof(format string, args ...any) {
	if enabled {
		logger.Infof(format, args...)
	}
}

func Debugf(format string, args ...any) {
	if enabled {
		logger.Debugf(format, args...)
	}
}
