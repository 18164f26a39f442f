package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	for _, p := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		cfg, err := Load(p)
		if err != nil {
			t.Fatalf("Load(%q): %v", p, err)
		}
		if cfg.Listen != ":8080" || cfg.Bridge.Mode != BridgeFile || cfg.Bridge.FilePath != "blockly_code.txt" {
			t.Fatalf("defaults not applied: %+v", cfg)
		}
		if !cfg.UsesFile() || cfg.UsesWS() {
			t.Fatalf("default bridge mode uses=%v/%v", cfg.UsesFile(), cfg.UsesWS())
		}
	}
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	p := writeConfig(t, `
listen: " :9090 "
bridge:
  mode: BOTH
  ws_url: ws://robot.local:7000/v1/bridge
  ack_timeout: 2s
logging:
  file: logs/server.log
  max_size_mb: 0
index:
  sqlite_path: ""
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.Bridge.Mode != BridgeBoth || !cfg.UsesFile() || !cfg.UsesWS() {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Bridge.FilePath != "blockly_code.txt" || cfg.Bridge.ClientName != "roboblocks" {
		t.Fatalf("bridge defaults lost: %+v", cfg.Bridge)
	}
	if cfg.Logging.MaxSizeMB != 50 || cfg.Logging.File != "logs/server.log" {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if cfg.Index.SQLitePath != "" {
		t.Fatalf("explicit empty sqlite path should disable the index, got %q", cfg.Index.SQLitePath)
	}
	if d, _ := cfg.Bridge.AckTimeoutDuration(); d != 2*time.Second {
		t.Fatalf("ack timeout=%v", d)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("ROBOBLOCKS_MIRROR_SECRET_ACCESS_KEY", "")
	cases := map[string]string{
		"unknown mode":  "bridge:\n  mode: serial\n",
		"ws no url":     "bridge:\n  mode: ws\n",
		"ws bad url":    "bridge:\n  mode: ws\n  ws_url: http://x\n",
		"bad timeout":   "bridge:\n  ack_timeout: soon\n",
		"bad yaml":      "bridge: [\n",
		"mirror no dir": "audit_log_dir: \"\"\naudit_mirror:\n  endpoint: r2.example\n  bucket: b\n  access_key_id: a\n  secret_access_key: s\n",
		"mirror no key": "audit_mirror:\n  endpoint: r2.example\n  bucket: b\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.Contains(err.Error(), "server.yaml") {
			t.Fatalf("%s: error should name the file: %v", name, err)
		}
	}
}

func TestLoad_MirrorSecretFromEnv(t *testing.T) {
	t.Setenv("ROBOBLOCKS_MIRROR_SECRET_ACCESS_KEY", "from-env")
	cfg, err := Load(writeConfig(t, "audit_mirror:\n  endpoint: r2.example\n  bucket: audit\n  access_key_id: AK\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AuditMirror.Enabled() || cfg.AuditMirror.SecretAccessKey != "from-env" {
		t.Fatalf("mirror=%+v", cfg.AuditMirror)
	}
}
