package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/piiscrub/internal/detect"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "piiscrub"

	// DefaultAPITokenEnv is the environment variable holding the Zendesk API
	// token when the configuration does not name another one.
	DefaultAPITokenEnv = "ZENDESK_API_TOKEN"

	// DefaultTimeout is the per-request timeout for Zendesk API calls.
	DefaultTimeout = 30 * time.Second

	// DefaultDelimiter separates entities in the approved entity string.
	DefaultDelimiter = ","

	// DefaultRedactConcurrency is the number of redaction requests in flight
	// at once. One issues them sequentially, in match order.
	DefaultRedactConcurrency = 1

	// DefaultBatchSize is the number of tickets processed concurrently when
	// several are given.
	DefaultBatchSize = 4

	// DefaultListenAddr is the address the serve command binds to. It is
	// loopback-only because the server holds Zendesk credentials.
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultUserAgent identifies piiscrub in Zendesk API requests.
	DefaultUserAgent = "piiscrub (+https://github.com/nao1215/piiscrub)"

	// DefaultMaxBodySize limits how much of a Zendesk response is read.
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Config holds all configuration options for piiscrub.
// It is populated from the configuration file and CLI flags and passed
// through the application explicitly.
type Config struct {
	// ZendeskURL is the instance root, e.g. https://acme.zendesk.com.
	ZendeskURL string

	// Email is the agent email used with the API token.
	Email string

	// APITokenEnv names the environment variable holding the API token.
	APITokenEnv string

	// APIToken is the resolved API token. It is never read from the
	// configuration file.
	APIToken string

	// TicketIDs are the tickets to process.
	TicketIDs []int64

	// Model is the detection backend.
	Model detect.Model

	// Language is the language code of the ticket text.
	Language string

	// Threshold is the exclusive lower bound on entity confidence.
	Threshold float64

	// EntityTypes, when set, restricts detection to these entity types.
	EntityTypes []string

	// MaxTextBytes is the detection request size limit; longer text is
	// split into chunks.
	MaxTextBytes int

	// ChunkConcurrency is how many chunks of one text are detected at once.
	ChunkConcurrency int

	// AWS selects the region and credentials for Comprehend.
	AWS detect.AWSConfig

	// Delimiter separates entities in the approved entity string.
	Delimiter string

	// RedactConcurrency is the number of redaction requests in flight.
	RedactConcurrency int

	// BatchSize is the number of tickets processed concurrently.
	BatchSize int

	// ListenAddr is the serve command's listen address.
	ListenAddr string

	// Timeout is the per-request timeout for Zendesk API calls.
	Timeout time.Duration

	// UserAgent is sent with Zendesk API requests.
	UserAgent string

	// MaxBodySize limits Zendesk response reads.
	MaxBodySize int64

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON selects JSON log output.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// JSONReport enables JSON report output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When empty, the report is written to stdout.
	ReportFile string

	// Audit enables the audit database.
	Audit bool

	// DBDir is the directory of the audit database.
	// Defaults to the XDG data directory.
	DBDir string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		APITokenEnv:       DefaultAPITokenEnv,
		Model:             detect.DefaultModel,
		Language:          detect.DefaultLanguage,
		Threshold:         detect.DefaultThreshold,
		MaxTextBytes:      detect.DefaultMaxTextBytes,
		ChunkConcurrency:  detect.DefaultChunkConcurrency,
		Delimiter:         DefaultDelimiter,
		RedactConcurrency: DefaultRedactConcurrency,
		BatchSize:         DefaultBatchSize,
		ListenAddr:        DefaultListenAddr,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for piiscrub.
// On Linux: ~/.local/share/piiscrub
// On macOS: ~/Library/Application Support/piiscrub
// On Windows: %LOCALAPPDATA%\piiscrub
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for piiscrub.
// On Linux: ~/.config/piiscrub
// On macOS: ~/Library/Application Support/piiscrub
// On Windows: %APPDATA%\piiscrub
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ResolveAPIToken reads the API token from the environment variable named
// by APITokenEnv. An already set APIToken is kept.
func (c *Config) ResolveAPIToken() {
	if c.APIToken != "" {
		return
	}
	env := c.APITokenEnv
	if env == "" {
		env = DefaultAPITokenEnv
	}
	c.APIToken = os.Getenv(env)
}

// DetectOptions returns the detection options of the configuration.
func (c *Config) DetectOptions() detect.Options {
	return detect.Options{
		Model:       c.Model,
		Language:    c.Language,
		Threshold:   c.Threshold,
		EntityTypes: c.EntityTypes,
	}
}

// AuditDBDir returns the audit database directory, defaulting to the XDG
// data directory.
func (c *Config) AuditDBDir() string {
	if c.DBDir != "" {
		return c.DBDir
	}
	return XDGDataDir()
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the package's sentinel
// errors.
func (c *Config) Validate() error {
	if c.ZendeskURL == "" {
		return ErrNoZendeskURL
	}
	u, err := url.Parse(c.ZendeskURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: %q", ErrInvalidZendeskURL, c.ZendeskURL)
	}

	if c.APIToken != "" && c.Email == "" {
		return ErrNoEmail
	}

	if c.Threshold < 0 || c.Threshold > 1 {
		return ErrInvalidThreshold
	}

	if _, err := detect.NormalizeLanguage(c.Language); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLanguage, err)
	}

	if c.Delimiter == "" {
		return ErrEmptyDelimiter
	}

	if c.RedactConcurrency <= 0 {
		return ErrInvalidRedactConcurrency
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 || c.MaxTextBytes < 0 || c.ChunkConcurrency < 0 {
		return ErrInvalidLimit
	}

	for _, id := range c.TicketIDs {
		if id <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidTicketID, id)
		}
	}

	return nil
}

// RequireTickets returns ErrNoTicket if no ticket ids are configured.
func (c *Config) RequireTickets() error {
	if len(c.TicketIDs) == 0 {
		return ErrNoTicket
	}
	return nil
}
