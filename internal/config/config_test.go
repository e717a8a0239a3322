package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/chatrelay/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestTemplatesLoadCleanly(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	relayPath := filepath.Join(dir, "relay.toml")
	if err := WriteTemplate(relayPath, "relay", false); err != nil {
		t.Fatalf("write relay template: %v", err)
	}
	cfg, err := LoadRelayConfig(relayPath)
	if err != nil {
		t.Fatalf("load relay template: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:5000" || !cfg.Admin.Enabled || cfg.MaxPayloadBytes != 65536 {
		t.Fatalf("unexpected relay template: %+v", cfg)
	}

	chatPath := filepath.Join(dir, "chat.toml")
	if err := WriteTemplate(chatPath, "CHAT", false); err != nil {
		t.Fatalf("write chat template: %v", err)
	}
	chat, err := LoadChatConfig(chatPath)
	if err != nil {
		t.Fatalf("load chat template: %v", err)
	}
	if chat.Port != 5000 || chat.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected chat template: %+v", chat)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "node_id = \"x\"\n")
	if err := WriteTemplate(path, "relay", false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "relay", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("webhook"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadRelayConfig(writeFile(t, "[admin]\nenabled = true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "relay.local" || cfg.ListenAddr != "127.0.0.1:5000" || cfg.Admin.Addr != "127.0.0.1:9500" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRelayConfigRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	_, err := LoadRelayConfig(writeFile(t, "listen_adr = \"127.0.0.1:5000\"\n"))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateRelayConfig(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration":   "handshake_timeout = \"soon\"\n",
		"negative poll":  "poll_interval = \"-1s\"\n",
		"bad addr":       "listen_addr = \"5000\"\n",
		"admin collides": "listen_addr = \"127.0.0.1:5000\"\n[admin]\nenabled = true\naddr = \"127.0.0.1:5000\"\n",
	}
	for name, body := range cases {
		if _, err := LoadRelayConfig(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseDuration(t *testing.T) {
	testlog.Start(t)
	if d, err := ParseDuration(""); err != nil || d != 0 {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	if d, err := ParseDuration(" 250ms "); err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms: d=%v err=%v", d, err)
	}
	if _, err := ParseDuration("0s"); err == nil {
		t.Fatalf("expected error for zero duration")
	}
}

func TestLoadChatConfigPortRange(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadChatConfig(writeFile(t, "port = 70000\n")); err == nil {
		t.Fatalf("expected port range error")
	}
}
