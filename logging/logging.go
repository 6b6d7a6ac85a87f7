// Package logging configures the process-wide logrus logger and hands out
// per-module entries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
	Log rotation schedule

	"0 30 * * * *"             Every hour on the half hour
	"@hourly"                  Every hour
	"@every 1h30m"             Every hour thirty
	@daily
	@midnight
*/

type Config struct {
	Console        bool   `yaml:"console"`
	Filename       string `yaml:"filename"`
	Append         bool   `yaml:"append"`
	RotateSchedule string `yaml:"rotateSchedule"`
	MaxSize        int    `yaml:"maxSize"`
	MaxBackups     int    `yaml:"maxBackups"`
	MaxAge         int    `yaml:"maxAge"`
	Compress       bool   `yaml:"compress"`
	JSON           bool   `yaml:"json"`
	DefaultLevel   string `yaml:"defaultLevel"`
}

// DefaultConfig logs text to stdout at INFO.
func DefaultConfig() Config {
	return Config{
		Filename:     "-",
		Append:       true,
		DefaultLevel: "INFO",
	}
}

var (
	mu         sync.Mutex
	rotateCron *cron.Cron
)

// Configure applies cfg to the standard logrus logger. Filename "-" writes to
// stdout and "." discards output; anything else is a rotated file.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := ParseLevel(cfg.DefaultLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if rotateCron != nil {
		rotateCron.Stop()
		rotateCron = nil
	}

	switch cfg.Filename {
	case "", "-":
		log.SetOutput(os.Stdout)
	case ".":
		log.SetOutput(io.Discard)
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		if !cfg.Append {
			lj.Rotate()
		}
		if len(cfg.RotateSchedule) > 0 {
			c := cron.New()
			if _, err := c.AddFunc(cfg.RotateSchedule, func() { lj.Rotate() }); err != nil {
				return fmt.Errorf("logger rotate schedule %q: %w", cfg.RotateSchedule, err)
			}
			c.Start()
			rotateCron = c
		}
		if cfg.Console {
			log.SetOutput(io.MultiWriter(lj, os.Stdout))
		} else {
			log.SetOutput(lj)
		}
	}
	return nil
}

// ParseLevel accepts TRACE, DEBUG, INFO, WARN and ERROR in any case. An empty
// string means INFO.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return log.InfoLevel, nil
	case "WARNING":
		return log.WarnLevel, nil
	}
	l, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// GetLog returns an entry tagged with the module name.
func GetLog(name string) *log.Entry {
	return log.WithField("module", name)
}
