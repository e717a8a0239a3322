package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "relay":
		return relayTemplate, nil
	case "chat":
		return chatTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const relayTemplate = `node_id = "relay.local"
listen_addr = "127.0.0.1:5000"
handshake_timeout = "5s"
poll_interval = "250ms"
accept_poll = "250ms"
write_timeout = "5s"
max_name_length = 32
max_payload_bytes = 65536

[admin]
enabled = true
addr = "127.0.0.1:9500"
cors_origins = ["http://localhost:3000"]
`

const chatTemplate = `host = "127.0.0.1"
port = 5000
name = ""
connect_timeout = "5s"
max_connect_attempts = 3
`
