package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "service":
		return serviceTemplate, nil
	case "profile":
		return profileTemplate, nil
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

const serviceTemplate = `device_id = "htlvc.local"
profile = "cmd/htlvcd/profile.toml"
stream_addr = "127.0.0.1:7420"
websocket_addr = "127.0.0.1:7421"
websocket_path = "/ws"
admin_addr = "127.0.0.1:7480"
admin_token = ""
cors_origins = ["http://localhost:3000"]
max_nesting_depth = 4
queue_depth = 64
pool_bytes = 4096
read_timeout = "30s"
write_timeout = "5s"
rate_per_second = 200
rate_burst = 50
breaker_failures = 5
breaker_cooldown = "10s"
tls_enabled = false
`

const profileTemplate = `name = "device"

[[tags]]
tag = 0x01
name = "ping"
handler = "status"

[[tags]]
tag = 0x02
name = "version"
kind = "get"
handler = "version"

[[tags]]
tag = 0x03
name = "echo"
handler = "echo"
`
