package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models sitetrack.yml.
type Config struct {
	Org struct {
		Name     string `yaml:"name"`
		Currency string `yaml:"currency"`
	} `yaml:"org"`
	Session struct {
		TTLHours   int    `yaml:"ttl_hours"`
		CookieName string `yaml:"cookie_name"`
	} `yaml:"session"`
	Workflow struct {
		// Optional override of the built-in step template. Empty means
		// the default 23-step fabrication workflow.
		Steps []WorkflowStep `yaml:"steps"`
	} `yaml:"workflow"`
	Users    []SeedUser      `yaml:"users"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound audit-event subscription. An empty Events
// list means every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

type WorkflowStep struct {
	Name        string `yaml:"name"`
	Responsible string `yaml:"responsible"`
}

// SeedUser is an account provisioned at migration time. The password is
// hashed on insert and never stored back to the file readable.
type SeedUser struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with stk init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.Currency == "" {
		return fmt.Errorf("config.org.currency is required")
	}
	if c.Session.TTLHours < 0 {
		return fmt.Errorf("config.session.ttl_hours must not be negative")
	}
	for i, s := range c.Workflow.Steps {
		if s.Name == "" {
			return fmt.Errorf("workflow step %d has empty name", i+1)
		}
		if s.Responsible == "" {
			return fmt.Errorf("workflow step %q has empty responsible", s.Name)
		}
	}
	for _, u := range c.Users {
		if u.Name == "" {
			return fmt.Errorf("config.users contains empty user name")
		}
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d] timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// TTLHours returns the configured session lifetime with the default applied.
func (c *Config) TTLHours() int {
	if c == nil || c.Session.TTLHours == 0 {
		return 12
	}
	return c.Session.TTLHours
}

// CookieName returns the session cookie name with the default applied.
func (c *Config) CookieName() string {
	if c == nil || c.Session.CookieName == "" {
		return "sitetrack_session"
	}
	return c.Session.CookieName
}

// Currency returns the display currency with the default applied.
func (c *Config) Currency() string {
	if c == nil || c.Org.Currency == "" {
		return "INR"
	}
	return c.Org.Currency
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sitetrack.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgName string) string {
	return fmt.Sprintf(defaultTemplate, orgName)
}

// Default returns the default Config struct for an organization.
func Default(orgName string) *Config {
	var cfg Config
	cfg.Org.Name = orgName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  name: %s
  currency: INR

session:
  ttl_hours: 12
  cookie_name: sitetrack_session

users:
  - name: admin
    password: changeme
`
