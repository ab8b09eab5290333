// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance. It discards output until Init is called.
	Logger = zerolog.Nop()
)

// Options configures the global logger.
type Options struct {
	// Level is a zerolog level name. Unknown values fall back to info.
	Level string
	// File, when set, receives a rotated JSON copy of every entry.
	File string
	// Pretty switches stdout to a human readable console writer.
	Pretty bool
	// MaxSizeMB is the rotation size of File. Defaults to 100.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Defaults to 5.
	MaxBackups int
}

// Init initializes the global logger.
func Init(opts Options) {
	logLevel, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var output io.Writer = os.Stdout
	if opts.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = 5
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: backups,
			Compress:   true,
		}
		output = zerolog.MultiLevelWriter(output, rotator)
	}

	Logger = New(output)

	Logger.Info().
		Str("level", logLevel.String()).
		Str("file", opts.File).
		Msg("logger initialized")
}

// New builds a logger writing to w with the standard context fields.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithSubject returns a logger tagged with the evaluated pet.
func WithSubject(l zerolog.Logger, userID, petID string) zerolog.Logger {
	return l.With().Str("user_id", userID).Str("pet_id", petID).Logger()
}
