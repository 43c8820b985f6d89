package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tooldo/internal/period"
)

// Config models tooldo.yml.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"workspace"`
	Plans struct {
		Catalog map[string]PlanSpec `yaml:"catalog"`
		Default string              `yaml:"default"`
	} `yaml:"plans"`
	Dashboard struct {
		DefaultPreset string `yaml:"default_preset"`
		PageSize      int    `yaml:"page_size"`
	} `yaml:"dashboard"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type PlanSpec struct {
	Name           string `yaml:"name"`
	MaxMembers     int    `yaml:"max_members"`
	MaxOpenActions int    `yaml:"max_open_actions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with td workspace config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if c.Workspace.Kind != "business-workspace" {
		return fmt.Errorf("config.workspace.kind must be 'business-workspace'")
	}
	if c.Plans.Catalog == nil {
		return fmt.Errorf("config.plans.catalog is required")
	}
	for id, spec := range c.Plans.Catalog {
		if id == "" {
			return fmt.Errorf("config.plans.catalog contains empty plan id")
		}
		if spec.MaxMembers <= 0 {
			return fmt.Errorf("plan %s must allow at least one member", id)
		}
		if spec.MaxOpenActions <= 0 {
			return fmt.Errorf("plan %s must allow at least one open action", id)
		}
	}
	if c.Plans.Default == "" {
		return fmt.Errorf("config.plans.default is required")
	}
	if _, ok := c.Plans.Catalog[c.Plans.Default]; !ok {
		return fmt.Errorf("default plan %s not defined in catalog", c.Plans.Default)
	}
	if c.Dashboard.DefaultPreset != "" {
		if _, err := period.Parse(c.Dashboard.DefaultPreset); err != nil {
			return fmt.Errorf("config.dashboard.default_preset: %w", err)
		}
	}
	if c.Dashboard.PageSize < 0 {
		return fmt.Errorf("config.dashboard.page_size must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tooldo.yml")
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

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	cfg.Workspace.Kind = "business-workspace"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
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

const defaultTemplate = `workspace:
  id: %s
  kind: business-workspace

plans:
  catalog:
    free:
      name: "Free"
      max_members: 3
      max_open_actions: 20
    team:
      name: "Team"
      max_members: 25
      max_open_actions: 500
    business:
      name: "Business"
      max_members: 200
      max_open_actions: 5000
  default: free

dashboard:
  default_preset: this-week
  page_size: 20
`
