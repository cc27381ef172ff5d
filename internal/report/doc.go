// Package report renders scrub reports for people and tools.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown for sharing in tickets or wikis
//
// Writers implement the Writer interface and can be composed with
// MultiWriter. None of them ever print comment text: a report only carries
// the entities that were detected or approved and the per-request outcomes.
package report
