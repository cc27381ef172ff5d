// Package server provides the piiscrub HTTP app.
//
// The app binds the detect and redact workflows to HTTP endpoints and
// keeps the active ticket id in sync with the ticketing UI:
//
//	PUT|POST /update-ticket-id   set the active ticket (bare JSON id)
//	PUT|POST /replace-ticket-id  alias of /update-ticket-id
//	POST     /detect             run detection on the active ticket
//	POST     /redact             redact approved entities
//	GET      /entities           last rendered entity string
//	GET      /sidebar            HTML sidebar for the ticket UI
//	GET      /healthz            liveness
//	GET      /metrics            Prometheus metrics, when enabled
//
// Only one workflow runs at a time; a second request while one is running
// gets 409 Conflict.
package server
