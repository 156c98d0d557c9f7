// Package logging provides structured logging utilities for the weeknotes server.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (user ID anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "granola.sync")
//	logger.Info("sync finished", logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token refreshed", logging.UserHash(userID))
//
// # Security Considerations
//
// User IDs are hashed to prevent PII leakage while allowing correlation,
// and tokens are never logged directly.
package logging
