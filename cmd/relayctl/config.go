package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/chatrelay/internal/client"
	"github.com/danmuck/chatrelay/internal/config"
	"github.com/danmuck/chatrelay/internal/relay"
)

// serveConfig is everything `relayctl serve` needs.
type serveConfig struct {
	Relay       relay.Config
	AdminAddr   string
	CorsOrigins []string
}

type adminFileConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type serveFileConfig struct {
	NodeID           string          `toml:"node_id"`
	ListenAddr       string          `toml:"listen_addr"`
	HandshakeTimeout string          `toml:"handshake_timeout"`
	PollInterval     string          `toml:"poll_interval"`
	AcceptPoll       string          `toml:"accept_poll"`
	WriteTimeout     string          `toml:"write_timeout"`
	MaxNameLength    int             `toml:"max_name_length"`
	MaxPayloadBytes  uint32          `toml:"max_payload_bytes"`
	Admin            adminFileConfig `toml:"admin"`
}

func defaultServeConfig() serveConfig {
	return serveConfig{Relay: relay.DefaultConfig()}
}

// loadServeConfig validates path strictly, then overlays only the keys the file
// defines onto the relay defaults.
func loadServeConfig(path string) (serveConfig, error) {
	cfg := defaultServeConfig()
	if _, err := config.LoadRelayConfig(path); err != nil {
		return serveConfig{}, err
	}

	var raw serveFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serveConfig{}, fmt.Errorf("load relay config: %w", err)
	}

	if meta.IsDefined("node_id") {
		if id := strings.TrimSpace(raw.NodeID); id != "" {
			cfg.Relay.NodeID = id
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.Relay.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Relay.HandshakeTimeout},
		{"poll_interval", raw.PollInterval, &cfg.Relay.PollInterval},
		{"accept_poll", raw.AcceptPoll, &cfg.Relay.AcceptPoll},
		{"write_timeout", raw.WriteTimeout, &cfg.Relay.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.value)
		if err != nil {
			return serveConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v > 0 {
			*d.dst = v
		}
	}

	if meta.IsDefined("max_name_length") && raw.MaxNameLength > 0 {
		cfg.Relay.MaxNameLength = raw.MaxNameLength
	}
	if meta.IsDefined("max_payload_bytes") && raw.MaxPayloadBytes > 0 {
		cfg.Relay.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}

	if meta.IsDefined("admin", "enabled") && raw.Admin.Enabled {
		cfg.AdminAddr = "127.0.0.1:9500"
		if meta.IsDefined("admin", "addr") {
			cfg.AdminAddr = strings.TrimSpace(raw.Admin.Addr)
		}
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	return cfg, nil
}

// chatConfig is everything `relayctl chat` needs.
type chatConfig struct {
	Host   string
	Port   int
	Name   string
	Client client.Config
}

type chatFileConfig struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	Name               string `toml:"name"`
	ConnectTimeout     string `toml:"connect_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func defaultChatConfig() chatConfig {
	return chatConfig{
		Host:   "127.0.0.1",
		Port:   5000,
		Client: client.DefaultConfig(),
	}
}

func loadChatConfig(path string) (chatConfig, error) {
	cfg := defaultChatConfig()
	if _, err := config.LoadChatConfig(path); err != nil {
		return chatConfig{}, err
	}

	var raw chatFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return chatConfig{}, fmt.Errorf("load chat config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("connect_timeout") {
		d, err := config.ParseDuration(raw.ConnectTimeout)
		if err != nil {
			return chatConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		if d > 0 {
			cfg.Client.ConnectTimeout = d
		}
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Client.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
