// Package model defines the data structures shared by the piiscrub packages.
//
// This package contains the following main types:
//   - Comment: A ticket comment as delivered by the ticketing host
//   - Entity: A span of text classified as PII by a detection backend
//   - Match and RedactionRequest: The units of work of the redaction workflow
//   - ScrubReport: The accumulated result of one detect or redact run
//   - State: The linear state machine of a workflow run
//
// Models live in their own package so that the ticket, detect, pipeline and
// report packages can share them without import cycles. All of them are
// request-scoped; nothing here is persisted except through the audit
// database, which stores fingerprints rather than text.
package model
