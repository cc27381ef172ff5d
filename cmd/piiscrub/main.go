// Package main provides the entry point for the piiscrub CLI.
//
// piiscrub finds personal data in the comments of a Zendesk ticket and
// asks Zendesk to redact the entities a reviewer approves.
//
// Usage:
//
//	piiscrub detect --ticket <id>
//	piiscrub redact --ticket <id> "John Smith, 555-1234"
//	piiscrub serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
