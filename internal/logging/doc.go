// Package logging provides structured logging utilities for the gmailnotifier service.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithHandler(slog.Default(), "setCron")
//	logger.Info("job registered",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("credential saved",
//	    logging.UserHash(email))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
