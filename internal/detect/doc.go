// Package detect is the entity-detection facade.
//
// A Detector sends plain text to a detection backend and returns the
// detected PII. The result keeps only entities whose confidence is strictly
// greater than the threshold, and duplicates are removed by exact string
// match in order of first occurrence. Case and whitespace variants are
// distinct entities.
//
// Backends are selected by the Model tagged variant. A Registry maps each
// Model to a Handler; a Model without a registered Handler yields an
// *UnsupportedError value instead of a panic or a generic error. The
// implemented backends are:
//
//   - ModelComprehend calls DetectEntities (named-entity recognition)
//   - ModelComprehendPII calls DetectPiiEntities (PII-specific recognition)
//   - ModelPattern matches emails, card numbers, keys and similar
//     structured values offline
//
// Text larger than the service's request limit is split into chunks on
// whitespace and the chunks are detected concurrently.
//
// AWS configuration is explicit: an AWSConfig value is passed to
// NewComprehendClient. When an identity pool is configured, credentials come
// from an unauthenticated Cognito identity.
package detect
