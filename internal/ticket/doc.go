// Package ticket is the facade over the ticketing host.
//
// The host is an injected collaborator (the Host interface) rather than a
// package-level singleton, so every workflow can be exercised against a test
// double. The facade turns the host's keyed payloads into model types and
// classifies failures into the error taxonomy used by the workflows:
//
//   - ErrRetrieval: the ticket id or comments could not be read
//   - ErrNotFound: the host reports that the redaction text is not in the comment
//   - ErrRedaction: a redaction request failed for any other reason
//
// The production Host is implemented by package zendesk.
package ticket
