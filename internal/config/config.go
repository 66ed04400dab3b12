package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Deletion policies per entity kind.
const (
	DeletionArchive = "archive"
	DeletionPurge   = "purge"
)

// Authorship policies for organization-owned records.
const (
	AuthorshipCreator      = "creator"
	AuthorshipCoordinators = "coordinators"
)

// Config models offerline.yml.
type Config struct {
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Deletion struct {
		// Kind -> archive|purge. Which flavour delete_X performs is explicit
		// configuration, never inferred from the call site.
		Policies map[string]string `yaml:"policies"`
	} `yaml:"deletion"`
	Authorship struct {
		// Who counts as "author" of organization-owned records:
		// the original creator, or any coordinator of the organization.
		Organizations string `yaml:"organizations"`
	} `yaml:"authorship"`
	Suspension struct {
		DefaultDurationDays int `yaml:"default_duration_days"`
	} `yaml:"suspension"`
	Proposals struct {
		DefaultExpiryDays int `yaml:"default_expiry_days"`
	} `yaml:"proposals"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for kind, policy := range c.Deletion.Policies {
		if kind == "" {
			return fmt.Errorf("config.deletion.policies contains empty kind")
		}
		if policy != DeletionArchive && policy != DeletionPurge {
			return fmt.Errorf("deletion policy for %s must be %q or %q", kind, DeletionArchive, DeletionPurge)
		}
	}
	switch c.Authorship.Organizations {
	case AuthorshipCreator, AuthorshipCoordinators:
	default:
		return fmt.Errorf("config.authorship.organizations must be %q or %q", AuthorshipCreator, AuthorshipCoordinators)
	}
	if c.Suspension.DefaultDurationDays < 0 {
		return fmt.Errorf("config.suspension.default_duration_days must not be negative")
	}
	if c.Proposals.DefaultExpiryDays < 0 {
		return fmt.Errorf("config.proposals.default_expiry_days must not be negative")
	}
	return nil
}

// DeletionPolicy returns the configured policy for a kind, defaulting to purge.
func (c *Config) DeletionPolicy(kind string) string {
	if c == nil {
		return DeletionPurge
	}
	if p, ok := c.Deletion.Policies[kind]; ok {
		return p
	}
	return DeletionPurge
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "offerline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Deletion.Policies = map[string]string{
		"requests":            DeletionArchive,
		"offers":              DeletionArchive,
		"organizations":       DeletionPurge,
		"service_types":       DeletionPurge,
		"mediums_of_exchange": DeletionPurge,
	}
	cfg.Authorship.Organizations = AuthorshipCoordinators
	cfg.Suspension.DefaultDurationDays = 7
	cfg.Proposals.DefaultExpiryDays = 14
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `auth:
  jwt_secret: ""
  allow_legacy_actor_header: false

deletion:
  policies:
    requests: archive
    offers: archive
    organizations: purge
    service_types: purge
    mediums_of_exchange: purge

authorship:
  organizations: coordinators

suspension:
  default_duration_days: 7

proposals:
  default_expiry_days: 14
`
