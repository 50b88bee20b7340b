// Package logger configures the process-wide logrus logger with optional file rotation.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global instance. It is usable before Init with logrus defaults.
	Logger = logrus.New()
	logMu  sync.Mutex
	rotor  *lumberjack.Logger
)

// Config controls level, format and the optional rotating file sink.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	OutputFile string // empty means stdout only
	MaxSize    int    // MB before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "06-01-02 15:04:05",
		})
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		if rotor != nil {
			_ = rotor.Close()
		}
		rotor = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    withDefault(cfg.MaxSize, 100),
			MaxBackups: withDefault(cfg.MaxBackups, 5),
			MaxAge:     withDefault(cfg.MaxAge, 30),
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotor)
	}
	l.SetOutput(io.MultiWriter(writers...))

	Logger = l
	return nil
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	logMu.Lock()
	defer logMu.Unlock()
	return Logger.WithField("component", name)
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	logMu.Lock()
	defer logMu.Unlock()
	if rotor == nil {
		return nil
	}
	err := rotor.Close()
	rotor = nil
	return err
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
