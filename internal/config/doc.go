// Package config provides the configuration of piiscrub: the Zendesk
// instance and credentials, detection settings, redaction settings and
// output preferences. Values come from defaults, an optional YAML file and
// CLI flags, in increasing order of precedence.
package config
