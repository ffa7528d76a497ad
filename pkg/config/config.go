// Package config loads server configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the database backend and connection string.
type DatabaseConfig struct {
	// Type is one of "postgres", "mysql" or "sqlite".
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AuthConfig selects how request identity is established.
type AuthConfig struct {
	// Mode is "header" (trusted X-Remote-* headers, development default)
	// or "jwt" (bearer token).
	Mode string `yaml:"mode"`

	// Gate is "store" (project membership checked against the membership
	// tables) or "allow-all" (every authenticated actor is admitted;
	// development only).
	Gate string `yaml:"gate"`

	// JWT settings, used when Mode is "jwt".
	SubjectClaim  string `yaml:"subjectClaim"`
	EmailClaim    string `yaml:"emailClaim"`
	PublicKeyPath string `yaml:"publicKeyPath"`
}

// WorkflowConfig tunes the approval workflow engine.
type WorkflowConfig struct {
	// DecidePolicy is "once" (a second decision conflicts) or "last-wins"
	// (a second decision overwrites the first).
	DecidePolicy string `yaml:"decidePolicy"`
}

// AuditConfig tunes the audit trail.
type AuditConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retentionDays"`
}

// CacheConfig tunes the read-path response cache.
type CacheConfig struct {
	Enabled            bool `yaml:"enabled"`
	WorkflowTTLSeconds int  `yaml:"workflowTTLSeconds"`
	AssetTTLSeconds    int  `yaml:"assetTTLSeconds"`
	MaxSize            int  `yaml:"maxSize"`
}

// Config is the full server configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Audit    AuditConfig    `yaml:"audit"`
	Cache    CacheConfig    `yaml:"cache"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Database: DatabaseConfig{
			Type: "postgres",
		},
		Auth: AuthConfig{
			Mode:         "header",
			Gate:         "store",
			SubjectClaim: "sub",
			EmailClaim:   "email",
		},
		Workflow: WorkflowConfig{
			DecidePolicy: "once",
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Cache: CacheConfig{
			Enabled:            true,
			WorkflowTTLSeconds: 15,
			AssetTTLSeconds:    30,
			MaxSize:            1000,
		},
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays ASSETGRAPH_* environment variables on the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("ASSETGRAPH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ASSETGRAPH_DB_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("ASSETGRAPH_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ASSETGRAPH_AUTH_MODE"); v != "" {
		c.Auth.Mode = v
	}
	if v := os.Getenv("ASSETGRAPH_AUTH_GATE"); v != "" {
		c.Auth.Gate = v
	}
	if v := os.Getenv("ASSETGRAPH_JWT_PUBLIC_KEY_PATH"); v != "" {
		c.Auth.PublicKeyPath = v
	}
	if v := os.Getenv("ASSETGRAPH_DECIDE_POLICY"); v != "" {
		c.Workflow.DecidePolicy = v
	}
	if v := os.Getenv("ASSETGRAPH_AUDIT_ENABLED"); v != "" {
		c.Audit.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("ASSETGRAPH_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.Audit.RetentionDays = days
		}
	}
	if v := os.Getenv("ASSETGRAPH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("ASSETGRAPH_CACHE_WORKFLOW_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Cache.WorkflowTTLSeconds = secs
		}
	}
	if v := os.Getenv("ASSETGRAPH_CACHE_ASSET_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Cache.AssetTTLSeconds = secs
		}
	}
	if v := os.Getenv("ASSETGRAPH_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.MaxSize = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown database type %q (expected postgres, mysql or sqlite)", c.Database.Type)
	}
	switch c.Auth.Mode {
	case "header", "jwt":
	default:
		return fmt.Errorf("unknown auth mode %q (expected header or jwt)", c.Auth.Mode)
	}
	switch c.Auth.Gate {
	case "store", "allow-all":
	default:
		return fmt.Errorf("unknown auth gate %q (expected store or allow-all)", c.Auth.Gate)
	}
	switch c.Workflow.DecidePolicy {
	case "once", "last-wins":
	default:
		return fmt.Errorf("unknown decide policy %q (expected once or last-wins)", c.Workflow.DecidePolicy)
	}
	return nil
}
