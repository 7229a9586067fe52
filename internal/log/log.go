// Package log sets up the zerolog diagnostics logger. The terminal belongs to
// the UI, so diagnostics go to a file under the config directory.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const fileName = "checkin.log"

func ResolveDir(flagPath, configDir string) (string, error) {
	// Priority 1: --log-path flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: CHECKIN_LOG_PATH environment variable
	if envPath := os.Getenv("CHECKIN_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: <config dir>/logs
	if configDir == "" {
		return "", fmt.Errorf("no log directory available")
	}
	return filepath.Join(configDir, "logs"), nil
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger that writes human-readable lines to w.
func New(w io.Writer, level string) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	return zerolog.New(consoleWriter).
		Level(ParseLevel(level)).
		With().Timestamp().Int("pid", os.Getpid()).
		Logger()
}

// Open creates dir if needed and returns a logger appending to dir/checkin.log.
// The returned close function releases the file.
func Open(dir, level string) (zerolog.Logger, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return New(f, level), f.Close, nil
}

func Nop() zerolog.Logger {
	return zerolog.Nop()
}
