// Package pipeline runs the detect and redact workflows as a sequence of
// steps over a shared report.
//
// Every run follows the same linear state machine, recorded in the
// report's State field:
//
//	Idle → FetchingContext → Detecting → Done            (detect)
//	Idle → FetchingContext → Matching → Requesting → Done (redact)
//
// A failing step moves the run straight to Done with the error in the
// report. The only failure that does not end a redact run is a redaction
// target that is no longer present in its comment; it is logged and the
// remaining requests continue. Nothing is retried.
//
// Runner guards a host against overlapping runs. BatchProcessor runs one
// workflow over several tickets with bounded concurrency using errgroup.
package pipeline
