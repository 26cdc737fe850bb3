// Package logging sets up the process-wide slog logger and holds the attribute
// helpers used across calendar-mcp, so every package names things the same way.
//
// Logs always go to stderr: stdout carries the MCP stdio transport.
//
// Account names are e-mail addresses. Log them through Account, which hashes
// them, never as raw strings.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Common log attribute keys.
const (
	KeyTool     = "tool"
	KeyAccount  = "account"
	KeyStatus   = "status"
	KeyDuration = "duration"
	KeyError    = "error"
	KeyCategory = "category"
	KeyCalendar = "calendar"
)

// Status values for tool invocations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// ParseLevel maps a level name to an slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

// New builds a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, hopts)
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", opts.Format)
	}
	return slog.New(h), nil
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(Tool(tool))
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Account returns a slog attribute carrying the anonymised account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, AnonymizeEmail(account))
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Duration returns a slog attribute for an elapsed time.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Category returns a slog attribute for a classified error category.
func Category(category string) slog.Attr {
	return slog.String(KeyCategory, category)
}

// Calendar returns a slog attribute for a calendar identifier.
func Calendar(id string) slog.Attr {
	return slog.String(KeyCalendar, id)
}

// Err returns a slog attribute for an error. A nil err yields an empty group,
// which slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of email so log lines can be
// correlated without exposing the address. Values without "@" are returned
// unchanged; the special account "all" is one of them.
func AnonymizeEmail(email string) string {
	if email == "" || !strings.Contains(email, "@") {
		return email
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}
