// Package config loads the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bridge modes.
const (
	BridgeFile = "file"
	BridgeWS   = "ws"
	BridgeBoth = "both"
	BridgeNone = "none"
)

type Config struct {
	Listen string `yaml:"listen"`

	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
	Index   IndexConfig   `yaml:"index"`

	// AuditLogDir receives hourly submissions-*.jsonl.zst files. Empty disables it.
	AuditLogDir string            `yaml:"audit_log_dir"`
	AuditMirror AuditMirrorConfig `yaml:"audit_mirror"`

	// Optional overrides; empty means the built-in catalog and toolbox.
	BlocksPath  string `yaml:"blocks_path"`
	ToolboxPath string `yaml:"toolbox_path"`
}

type BridgeConfig struct {
	Mode       string `yaml:"mode"`
	FilePath   string `yaml:"file_path"`
	WSURL      string `yaml:"ws_url"`
	ClientName string `yaml:"client_name"`
	AckTimeout string `yaml:"ack_timeout"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AuditMirrorConfig uploads completed audit files to an S3-compatible
// bucket. An empty endpoint disables it.
type AuditMirrorConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func (m AuditMirrorConfig) Enabled() bool { return m.Endpoint != "" }

type IndexConfig struct {
	SQLitePath     string `yaml:"sqlite_path"`
	RemoteEndpoint string `yaml:"remote_endpoint"`
	RemoteToken    string `yaml:"remote_token"`
}

func Defaults() Config {
	return Config{
		Listen: ":8080",
		Bridge: BridgeConfig{
			Mode:       BridgeFile,
			FilePath:   "blockly_code.txt",
			ClientName: "roboblocks",
			AckTimeout: "5s",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		AuditLogDir: "data/audit",
		Index: IndexConfig{
			SQLitePath: "data/index/roboblocks.sqlite",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Normalize()
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	d := Defaults()
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	c.Bridge.Mode = strings.ToLower(strings.TrimSpace(c.Bridge.Mode))
	if c.Bridge.Mode == "" {
		c.Bridge.Mode = d.Bridge.Mode
	}
	c.Bridge.FilePath = strings.TrimSpace(c.Bridge.FilePath)
	if c.Bridge.FilePath == "" {
		c.Bridge.FilePath = d.Bridge.FilePath
	}
	c.Bridge.WSURL = strings.TrimSpace(c.Bridge.WSURL)
	c.Bridge.ClientName = strings.TrimSpace(c.Bridge.ClientName)
	if c.Bridge.ClientName == "" {
		c.Bridge.ClientName = d.Bridge.ClientName
	}
	if strings.TrimSpace(c.Bridge.AckTimeout) == "" {
		c.Bridge.AckTimeout = d.Bridge.AckTimeout
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
	c.AuditLogDir = strings.TrimSpace(c.AuditLogDir)
	c.AuditMirror.Endpoint = strings.TrimSpace(c.AuditMirror.Endpoint)
	c.AuditMirror.Bucket = strings.TrimSpace(c.AuditMirror.Bucket)
	if c.AuditMirror.SecretAccessKey == "" {
		c.AuditMirror.SecretAccessKey = strings.TrimSpace(os.Getenv("ROBOBLOCKS_MIRROR_SECRET_ACCESS_KEY"))
	}
	c.Index.SQLitePath = strings.TrimSpace(c.Index.SQLitePath)
	c.Index.RemoteEndpoint = strings.TrimSpace(c.Index.RemoteEndpoint)
	c.BlocksPath = strings.TrimSpace(c.BlocksPath)
	c.ToolboxPath = strings.TrimSpace(c.ToolboxPath)
}

func (c Config) Validate() error {
	switch c.Bridge.Mode {
	case BridgeFile, BridgeNone:
	case BridgeWS, BridgeBoth:
		if c.Bridge.WSURL == "" {
			return fmt.Errorf("bridge.mode=%s requires bridge.ws_url", c.Bridge.Mode)
		}
		if !strings.HasPrefix(c.Bridge.WSURL, "ws://") && !strings.HasPrefix(c.Bridge.WSURL, "wss://") {
			return fmt.Errorf("bridge.ws_url must be ws:// or wss://: %q", c.Bridge.WSURL)
		}
	default:
		return fmt.Errorf("unknown bridge.mode %q", c.Bridge.Mode)
	}
	if c.AuditMirror.Enabled() {
		if c.AuditLogDir == "" {
			return fmt.Errorf("audit_mirror requires audit_log_dir")
		}
		if c.AuditMirror.Bucket == "" || c.AuditMirror.AccessKeyID == "" || c.AuditMirror.SecretAccessKey == "" {
			return fmt.Errorf("audit_mirror requires bucket, access_key_id and secret_access_key")
		}
	}
	if _, err := c.Bridge.AckTimeoutDuration(); err != nil {
		return fmt.Errorf("bridge.ack_timeout: %w", err)
	}
	return nil
}

// UsesFile reports whether the file bridge is active.
func (c Config) UsesFile() bool {
	return c.Bridge.Mode == BridgeFile || c.Bridge.Mode == BridgeBoth
}

// UsesWS reports whether the websocket bridge is active.
func (c Config) UsesWS() bool {
	return c.Bridge.Mode == BridgeWS || c.Bridge.Mode == BridgeBoth
}

func (b BridgeConfig) AckTimeoutDuration() (time.Duration, error) {
	if b.AckTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.AckTimeout)
}
