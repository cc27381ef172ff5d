package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.RequireTickets()
// and can be checked with errors.Is().
var (
	// ErrNoZendeskURL is returned when no Zendesk instance URL is configured.
	ErrNoZendeskURL = errors.New("no Zendesk URL: set zendesk.url in the config file or use --zendesk-url")

	// ErrInvalidZendeskURL is returned when the Zendesk URL is not an
	// absolute http(s) URL.
	ErrInvalidZendeskURL = errors.New("invalid Zendesk URL")

	// ErrNoEmail is returned when an API token is available but no agent
	// email is configured. Zendesk token authentication needs both.
	ErrNoEmail = errors.New("no agent email: set zendesk.email or use --email")

	// ErrNoTicket is returned when a command that operates on tickets is run
	// without any ticket id.
	ErrNoTicket = errors.New("no ticket specified: use --ticket")

	// ErrInvalidTicketID is returned for a ticket id that is not positive.
	ErrInvalidTicketID = errors.New("invalid ticket id: must be positive")

	// ErrInvalidThreshold is returned when the threshold is outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold: must be within [0, 1]")

	// ErrInvalidLanguage is returned for an unsupported language code.
	ErrInvalidLanguage = errors.New("invalid language")

	// ErrEmptyDelimiter is returned when the entity delimiter is empty.
	ErrEmptyDelimiter = errors.New("invalid delimiter: must not be empty")

	// ErrInvalidRedactConcurrency is returned when the redaction concurrency
	// is not positive.
	ErrInvalidRedactConcurrency = errors.New("invalid redaction concurrency: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidLimit is returned when a size or concurrency limit is negative.
	// Zero selects the default.
	ErrInvalidLimit = errors.New("invalid limit: must be non-negative")
)
