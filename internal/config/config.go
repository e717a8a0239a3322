package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RelayFileConfig is the on-disk shape of a relay config file. Durations are
// Go duration strings.
type RelayFileConfig struct {
	NodeID           string      `toml:"node_id"`
	ListenAddr       string      `toml:"listen_addr"`
	HandshakeTimeout string      `toml:"handshake_timeout"`
	PollInterval     string      `toml:"poll_interval"`
	AcceptPoll       string      `toml:"accept_poll"`
	WriteTimeout     string      `toml:"write_timeout"`
	MaxNameLength    int         `toml:"max_name_length"`
	MaxPayloadBytes  uint32      `toml:"max_payload_bytes"`
	Admin            AdminConfig `toml:"admin"`
}

type AdminConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// ChatFileConfig configures the interactive client.
type ChatFileConfig struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	Name               string `toml:"name"`
	ConnectTimeout     string `toml:"connect_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

// LoadRelayConfig reads path strictly: unknown keys are errors.
func LoadRelayConfig(path string) (RelayFileConfig, error) {
	var cfg RelayFileConfig
	if err := loadToml(path, &cfg); err != nil {
		return RelayFileConfig{}, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "relay.local"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:5000"
	}
	if cfg.Admin.Enabled && cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:9500"
	}
	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayFileConfig{}, err
	}
	return cfg, nil
}

func LoadChatConfig(path string) (ChatFileConfig, error) {
	var cfg ChatFileConfig
	if err := loadToml(path, &cfg); err != nil {
		return ChatFileConfig{}, err
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if err := ValidateChatConfig(cfg); err != nil {
		return ChatFileConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %s", path, strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRelayConfig(cfg RelayFileConfig) error {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return fmt.Errorf("relay config missing node_id")
	}
	if err := validateHostPort("listen_addr", cfg.ListenAddr); err != nil {
		return err
	}
	for key, value := range map[string]string{
		"handshake_timeout": cfg.HandshakeTimeout,
		"poll_interval":     cfg.PollInterval,
		"accept_poll":       cfg.AcceptPoll,
		"write_timeout":     cfg.WriteTimeout,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("relay config %s: %w", key, err)
		}
	}
	if cfg.MaxNameLength < 0 {
		return fmt.Errorf("relay config max_name_length must not be negative")
	}
	if cfg.Admin.Enabled {
		if err := validateHostPort("admin.addr", cfg.Admin.Addr); err != nil {
			return err
		}
		if cfg.Admin.Addr == cfg.ListenAddr {
			return fmt.Errorf("relay config admin.addr must differ from listen_addr")
		}
	}
	return nil
}

func ValidateChatConfig(cfg ChatFileConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("chat config missing host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("chat config port out of range: %d", cfg.Port)
	}
	if _, err := ParseDuration(cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("chat config connect_timeout: %w", err)
	}
	return nil
}

// ParseDuration parses a positive duration. Empty means unset and yields zero.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", value)
	}
	return d, nil
}

func validateHostPort(key, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("relay config missing %s", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("relay config %s invalid (%s): %w", key, addr, err)
	}
	return nil
}
