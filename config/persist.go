package config

import (
	"bytes"

	"github.com/BurntSushi/toml"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Snapshot renders the active configuration as TOML with secrets redacted.
// Served by /api/dev/configs so the dashboard can show what the process is
// actually running with.
func Snapshot(cfg *Config) (string, error) {
	redacted := *cfg
	if redacted.Security.DevToken != "" {
		redacted.Security.DevToken = "[redacted]"
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(redacted); err != nil {
		return "", errors.Wrap(err, "failed to encode config snapshot")
	}
	return buf.String(), nil
}
