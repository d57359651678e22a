package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Load reads and strictly decodes the config file at path.
// Both JSON and YAML are accepted; YAML is coerced to JSON first so the same
// strict decoder (DisallowUnknownFields) covers both formats.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, fmt.Errorf("config %s (%s): %w", path, format, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields that cannot be verified by decoding alone.
func (c *Config) Validate() error {
	if _, err := ParseDurationField("dispatch.delay", c.Dispatch.Delay); err != nil {
		return err
	}
	if _, err := ParseDurationField("transport.ready_timeout", c.Transport.ReadyTimeout); err != nil {
		return err
	}
	for _, f := range []struct{ name, raw string }{
		{"gateway.read_timeout", c.Gateway.ReadTimeout},
		{"gateway.write_timeout", c.Gateway.WriteTimeout},
		{"gateway.idle_timeout", c.Gateway.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.name, f.raw); err != nil {
			return err
		}
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("schedules[%d]: cron spec is required", i)
		}
		if strings.TrimSpace(s.Contacts) == "" {
			return fmt.Errorf("schedules[%d]: contacts path is required", i)
		}
		if _, err := ParseDurationField(fmt.Sprintf("schedules[%d].delay", i), s.Delay); err != nil {
			return err
		}
	}
	if c.Telegram != nil && c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0 {
			return errors.New("telegram: token and chat_id are required when enabled")
		}
	}
	return nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so we can re-use the
// strict JSON decoder for both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
