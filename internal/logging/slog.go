package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyUserHash  = "user_hash"
	KeyWeek      = "week"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Setup installs the default slog logger. Debug mode lowers the level and
// switches to the text handler for local readability; otherwise JSON.
func Setup(debug bool) *slog.Logger {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the remote tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Week returns a slog attribute for a week start date (YYYY-MM-DD).
func Week(week string) slog.Attr {
	return slog.String(KeyWeek, week)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeUser returns a hashed representation of a user ID for logging.
// This allows correlation of log entries without exposing PII.
func AnonymizeUser(userID string) string {
	if userID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(userID))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized user ID.
func UserHash(userID string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeUser(userID))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
