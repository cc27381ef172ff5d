// Package zendesk implements ticket.Host over the Zendesk REST API.
//
// A browser app would read the active ticket from its surrounding sidebar.
// A server-side process has no sidebar, so the active ticket id lives in a
// TicketStore. The CLI sets it from the --ticket flag, and the sync
// endpoint in package server sets it when the sidebar forwards the id.
//
// Requests authenticate with an API token ("{email}/token:{token}" basic
// auth). Comments are read with cursor pagination, and the HTML body is
// preferred so that callers see the same markup as the agent UI.
package zendesk
