package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures console and file logging
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"console"`
	Debug  bool   `yaml:"debug" env:"DEBUG" default:"false"`

	// File receives JSON log lines in addition to stderr; empty disables it
	File       string `yaml:"file" env:"LOG_FILE" default:"openbmc_tests.log"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10"`
	MaxBackups int    `yaml:"max_backups" default:"3"`
}

// ParseLevel returns the zerolog level for the configuration. Debug wins
// over Level; unknown levels fall back to info.
func (c *LogConfig) ParseLevel() zerolog.Level {
	if c.Debug {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(c.Level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// ConfigureZerolog sets the global level and points log.Logger at stderr
// and, when File is set, a rotated log file. The returned closer flushes the
// file sink and must be closed before exit.
func (c *LogConfig) ConfigureZerolog() io.Closer {
	zerolog.SetGlobalLevel(c.ParseLevel())

	var console io.Writer = os.Stderr
	if !strings.EqualFold(c.Format, "json") {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
		}
	}

	if c.File == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
