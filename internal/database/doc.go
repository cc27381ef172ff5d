// Package database provides the SQLite audit log for piiscrub.
//
// The AuditDB records every workflow run and every redaction request it
// issued: run id, ticket id, comment id, outcome and time. The redacted
// text itself is never stored. Each request carries a SHA3-256 fingerprint
// of the entity instead, so a later run can tell whether the same text was
// already redacted from a comment without the log becoming a copy of the
// PII it tracks.
//
// SQLite is accessed through modernc.org/sqlite, which needs no cgo. The
// database is a single file in the piiscrub data directory.
package database
