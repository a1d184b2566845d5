// Package logging provides structured logging helpers for memorylane.
//
// All packages log through log/slog. This package keeps attribute names
// consistent and keeps personal data out of logs.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "append_row")
//	logger.Info("row appended", logging.Range("Sheet1!A1"))
//
// Never log a raw email or token:
//
//	logger.Warn("user not found in allow-list", logging.UserHash(email))
//	logger.Debug("token stored", "token", logging.SanitizeToken(tok.AccessToken))
package logging
