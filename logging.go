// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// NewDevLogger returns a colorized, human-friendly console logger suitable
// for local development, grounded in the same tint wiring used across the
// pack's cmd/*/main.go (e.g. flow-ingest, global-monitor). Production
// callers will typically build their own *slog.Logger (JSON handler,
// shipped to a log pipeline) and pass it via WithLogger instead.
func NewDevLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
