package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// sampleSettings documents the dialog engine sections. They are read by the
// settings tree, not by viper.
const sampleSettings = `
# ----------------------------------------------------------------------------
# Dialog engine settings
# ----------------------------------------------------------------------------
# Read in document order by "filemq server" and "filemq client".

# Server: rescan interval and heartbeat, in seconds or as a Go duration.
server:
  monitor: 1
  heartbeat: 1

# Who may connect. Anonymous access skips authentication; PLAIN checks the
# accounts below.
security:
  anonymous: 1
  plain:
    _: 0
    account:
      - login: guest
        password: guest

# Server: where to listen and what to publish.
bind:
  endpoint: tcp://*:5670
publish:
  - location: ./outbox
    alias: /

# Client: where to connect, what to mirror and where to put it.
client:
  inbox: ./inbox
  resync: 1
  heartbeat: 1
subscribe:
  - path: /
connect:
  endpoint: tcp://localhost:5670
`

// InitConfig writes a default configuration file to the default location.
//
// Returns the path written. Without force, an existing file is an error.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg section by section, each under a
// comment header, followed by the engine settings sample.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b strings.Builder
	b.WriteString("# FileMQ Configuration File\n")
	b.WriteString("# Environment variables (FILEMQ_<SECTION>_<KEY>) override these values.\n")

	sections := []struct {
		comment string
		key     string
		value   any
	}{
		{"Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, path)", "logging", cfg.Logging},
		{"Maximum time to wait for a graceful shutdown", "shutdown_timeout", cfg.ShutdownTimeout.String()},
		{"Prometheus metrics endpoint", "metrics", cfg.Metrics},
		{"Websocket transport", "transport", transportYAML(cfg.Transport)},
		{"Digest cache store: file, memory, badger (db_path) or s3 (bucket, region, endpoint, key_prefix)", "cache", cfg.Cache},
	}

	for _, s := range sections {
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("marshal %s: %w", s.key, err)
		}
		fmt.Fprintf(&b, "\n# %s\n", s.comment)
		b.Write(out)
	}

	b.WriteString(sampleSettings)
	return b.String(), nil
}

// transportYAML spells durations the way viper reads them back.
func transportYAML(t TransportConfig) map[string]any {
	return map[string]any{
		"path":             t.Path,
		"write_timeout":    t.WriteTimeout.String(),
		"handshake_rate":   t.HandshakeRate,
		"handshake_burst":  t.HandshakeBurst,
		"max_message_size": t.MaxMessageSize,
		"reconnect_min":    t.ReconnectMin.String(),
		"reconnect_max":    t.ReconnectMax.String(),
	}
}
