package config

import (
	"fmt"

	"github.com/nao1215/piiscrub/internal/detect"
)

// ZendeskFile is the zendesk section of the configuration file.
type ZendeskFile struct {
	// URL is the instance root, e.g. https://acme.zendesk.com.
	URL string `yaml:"url,omitempty"`

	// Email is the agent email used with the API token.
	Email string `yaml:"email,omitempty"`

	// APITokenEnv names the environment variable holding the API token.
	// The token itself is never stored in the file.
	APITokenEnv string `yaml:"api_token_env,omitempty"`
}

// DetectionFile is the detection section of the configuration file.
type DetectionFile struct {
	// Model is the detection backend name.
	Model string `yaml:"model,omitempty"`

	// Language is the language code of the ticket text.
	Language string `yaml:"language,omitempty"`

	// Threshold is the exclusive lower bound on entity confidence.
	// A pointer so that an explicit 0 can be told apart from unset.
	Threshold *float64 `yaml:"threshold,omitempty"`

	// EntityTypes restricts detection to these entity types.
	EntityTypes []string `yaml:"entity_types,omitempty"`

	// MaxTextBytes is the request size limit for chunking.
	MaxTextBytes int `yaml:"max_text_bytes,omitempty"`

	// ChunkConcurrency is how many chunks are detected at once.
	ChunkConcurrency int `yaml:"chunk_concurrency,omitempty"`
}

// RedactionFile is the redaction section of the configuration file.
type RedactionFile struct {
	// Delimiter separates entities in the approved entity string.
	Delimiter string `yaml:"delimiter,omitempty"`

	// Concurrency is the number of redaction requests in flight.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// AWSFile is the aws section of the configuration file.
type AWSFile struct {
	Region         string `yaml:"region,omitempty"`
	Profile        string `yaml:"profile,omitempty"`
	IdentityPoolID string `yaml:"identity_pool_id,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
}

// ServerFile is the server section of the configuration file.
type ServerFile struct {
	// Listen is the listen address of the serve command.
	Listen string `yaml:"listen,omitempty"`
}

// AuditFile is the audit section of the configuration file.
type AuditFile struct {
	// Enabled turns on the audit database.
	Enabled bool `yaml:"enabled,omitempty"`

	// DBDir is the directory of the audit database.
	DBDir string `yaml:"db_dir,omitempty"`
}

// File represents the structure of the .piiscrub configuration file.
type File struct {
	Zendesk   ZendeskFile   `yaml:"zendesk,omitempty"`
	Detection DetectionFile `yaml:"detection,omitempty"`
	Redaction RedactionFile `yaml:"redaction,omitempty"`
	AWS       AWSFile       `yaml:"aws,omitempty"`
	Server    ServerFile    `yaml:"server,omitempty"`
	Audit     AuditFile     `yaml:"audit,omitempty"`
}

// Apply copies every value set in the file into cfg. Unset values leave
// cfg unchanged, so Apply is called on defaults before flags are applied.
func (f *File) Apply(cfg *Config) error {
	if f.Zendesk.URL != "" {
		cfg.ZendeskURL = f.Zendesk.URL
	}
	if f.Zendesk.Email != "" {
		cfg.Email = f.Zendesk.Email
	}
	if f.Zendesk.APITokenEnv != "" {
		cfg.APITokenEnv = f.Zendesk.APITokenEnv
	}

	if f.Detection.Model != "" {
		m, err := detect.ParseModel(f.Detection.Model)
		if err != nil {
			return fmt.Errorf("detection.model: %w", err)
		}
		cfg.Model = m
	}
	if f.Detection.Language != "" {
		cfg.Language = f.Detection.Language
	}
	if f.Detection.Threshold != nil {
		cfg.Threshold = *f.Detection.Threshold
	}
	if len(f.Detection.EntityTypes) > 0 {
		cfg.EntityTypes = f.Detection.EntityTypes
	}
	if f.Detection.MaxTextBytes != 0 {
		cfg.MaxTextBytes = f.Detection.MaxTextBytes
	}
	if f.Detection.ChunkConcurrency != 0 {
		cfg.ChunkConcurrency = f.Detection.ChunkConcurrency
	}

	if f.Redaction.Delimiter != "" {
		cfg.Delimiter = f.Redaction.Delimiter
	}
	if f.Redaction.Concurrency != 0 {
		cfg.RedactConcurrency = f.Redaction.Concurrency
	}

	if f.AWS.Region != "" {
		cfg.AWS.Region = f.AWS.Region
	}
	if f.AWS.Profile != "" {
		cfg.AWS.Profile = f.AWS.Profile
	}
	if f.AWS.IdentityPoolID != "" {
		cfg.AWS.IdentityPoolID = f.AWS.IdentityPoolID
	}
	if f.AWS.Endpoint != "" {
		cfg.AWS.Endpoint = f.AWS.Endpoint
	}

	if f.Server.Listen != "" {
		cfg.ListenAddr = f.Server.Listen
	}

	if f.Audit.Enabled {
		cfg.Audit = true
	}
	if f.Audit.DBDir != "" {
		cfg.DBDir = f.Audit.DBDir
	}

	return nil
}
