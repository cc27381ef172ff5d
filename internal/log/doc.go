// Package log provides secure logging built on top of the standard slog
// package.
//
// The SecureHandler sanitizes log output before it reaches the underlying
// handler:
//   - credentials (Authorization headers, API tokens, AWS keys)
//   - ticket content and detection results, by key name (text, entity,
//     entities, comment_text, approved, rendered)
//   - values that look like tokens or email addresses, regardless of key
//
// Even in verbose mode these values are masked, so logs can be shared
// without leaking the PII that piiscrub is removing from tickets.
//
// # Usage
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Debug("redaction accepted",
//	    "ticket_id", 42,
//	    "text", "John Smith", // logged as ***REDACTED***
//	)
//	slog.SetDefault(logger)
package log
