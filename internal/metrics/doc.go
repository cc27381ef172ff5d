// Package metrics exposes Prometheus counters for piiscrub workflows and
// its HTTP app.
//
// Metrics are registered on a private registry rather than the global
// default, so tests and several servers in one process do not collide.
// Labels never carry ticket content: entity types and outcomes only.
package metrics
