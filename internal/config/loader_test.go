package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle.raucb")
	writeConfig(t, dir, `
hawkbit:
  server: hb.example.com
  controller_id: dev01
  bundle_download_location: `+bundle+`
`)

	loader := NewConfigLoader(dir, "NEOUPDATE")
	cfg, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Hawkbit.TenantID != "DEFAULT" {
		t.Errorf("tenant_id = %q, want DEFAULT", cfg.Hawkbit.TenantID)
	}
	if !cfg.Hawkbit.SSL || !cfg.Hawkbit.SSLVerify {
		t.Error("ssl and ssl_verify should default to true")
	}
	if cfg.Hawkbit.RetryWait != 5*time.Minute {
		t.Errorf("retry_wait = %v, want 5m", cfg.Hawkbit.RetryWait)
	}
	if cfg.Hawkbit.ConnectTimeout != 20*time.Second {
		t.Errorf("connect_timeout = %v, want 20s", cfg.Hawkbit.ConnectTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestLoadConfig_Values(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle.raucb")
	writeConfig(t, dir, `
hawkbit:
  server: hb.example.com:8443
  tenant_id: tenant1
  controller_id: dev02
  ssl: false
  ssl_verify: false
  auth_token: t1
  gateway_token: g1
  retry_wait: 30s
  bundle_download_location: `+bundle+`
  device:
    hw: "x"
installer:
  command: /usr/bin/rauc
  args: ["install"]
`)

	loader := NewConfigLoader(dir, "NEOUPDATE")
	cfg, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Hawkbit.Server != "hb.example.com:8443" {
		t.Errorf("server = %q", cfg.Hawkbit.Server)
	}
	if cfg.Hawkbit.RetryWait != 30*time.Second {
		t.Errorf("retry_wait = %v, want 30s", cfg.Hawkbit.RetryWait)
	}
	// 两个令牌同时配置是合法的，TargetToken优先由传输层保证
	if cfg.Hawkbit.AuthToken != "t1" || cfg.Hawkbit.GatewayToken != "g1" {
		t.Errorf("tokens = %q / %q", cfg.Hawkbit.AuthToken, cfg.Hawkbit.GatewayToken)
	}
	if cfg.Hawkbit.Device["hw"] != "x" {
		t.Errorf("device = %v", cfg.Hawkbit.Device)
	}
	if cfg.Installer.Command != "/usr/bin/rauc" || len(cfg.Installer.Args) != 1 {
		t.Errorf("installer = %+v", cfg.Installer)
	}
}

func TestLoadConfig_MissingControllerID(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
hawkbit:
  server: hb.example.com
`)

	loader := NewConfigLoader(dir, "NEOUPDATE")
	if _, err := loader.LoadConfig(); err == nil {
		t.Fatal("expected validation error for missing controller_id")
	}
}
