package config

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger is the global zerolog logger instance.
//
//nolint:gochecknoglobals // application-wide structured logging
var Logger zerolog.Logger

// logFileHandle tracks the current log file so it can be closed on re-init.
//
//nolint:gochecknoglobals // owned by the global logger
var logFileHandle *os.File

//nolint:gochecknoglobals // guards Logger and logFileHandle
var logMu sync.RWMutex

// InitLogger initializes Logger at the given level, writing to stderr and,
// when logFile is non-empty, appending to that file as well. An unparseable
// level falls back to info.
func InitLogger(level, logFile string) error {
	logMu.Lock()
	defer logMu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{consoleWriter()}

	closeLogFileLocked()

	if logFile != "" {
		if dirErr := EnsureLogDir(logFile); dirErr != nil {
			return dirErr
		}
		f, openErr := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if openErr != nil {
			return openErr
		}
		logFileHandle = f
		writers = append(writers, f)
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return nil
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// SetLogLevel changes the level of Logger; unparseable levels become info.
func SetLogLevel(level string) {
	logMu.Lock()
	defer logMu.Unlock()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	Logger = Logger.Level(lvl)
}

// CloseLogFile closes the log file, if any, and resets Logger to console only.
func CloseLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFileLocked()
}

// closeLogFileLocked must be called with logMu held.
func closeLogFileLocked() {
	if logFileHandle == nil {
		return
	}
	_ = logFileHandle.Close()
	logFileHandle = nil

	Logger = zerolog.New(consoleWriter()).
		Level(Logger.GetLevel()).
		With().
		Timestamp().
		Logger()
}

// GetLogger returns the global logger instance.
func GetLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return Logger
}

//nolint:gochecknoinits // a logger must exist before configuration is loaded
func init() {
	_ = InitLogger("info", "")
}
