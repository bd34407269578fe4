// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Capture CaptureConfig `toml:"capture"`
	Analyze AnalyzeConfig `toml:"analyze"`
	Log     LogConfig     `toml:"log"`
}

// CaptureConfig maps capture-related settings.
type CaptureConfig struct {
	Dir       *string           `toml:"dir"`
	Heartbeat *Duration         `toml:"heartbeat"`
	StopCode  *string           `toml:"stop-code"`
	Analyze   *bool             `toml:"analyze"`
	Hotkeys   map[string]string `toml:"hotkeys"`
}

// AnalyzeConfig maps replay and metric settings.
type AnalyzeConfig struct {
	Bucket       *Duration `toml:"bucket"`
	Heartbeat    *Duration `toml:"heartbeat"`
	Threshold    *int      `toml:"threshold"`
	MinWordCount *int      `toml:"min-word-count"`
	CSVDir       *string   `toml:"csv-dir"`
	Store        *bool     `toml:"store"`
}

// LogConfig maps diagnostic logging settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
	File   *string `toml:"file"`
}

// Duration decodes TOML strings such as "120s" or "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v <= 0 {
		return fmt.Errorf("duration %q must be positive", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// DefaultFileContents is written when the config command creates a new file.
const DefaultFileContents = `# keytrace configuration

[capture]
# dir = "~/.local/share/keytrace/logs"
# heartbeat = "120s"
# stop-code = ""
# analyze = true

# [capture.hotkeys]
# "ctrl+c" = "COPY"
# "ctrl+v" = "PASTE"

[analyze]
# bucket = "10m"
# heartbeat = "120s"
# threshold = 6
# min-word-count = 2
# csv-dir = ""
# store = true

[log]
# level = "info"
# format = "text"
# file = "~/.local/state/keytrace/keytrace.log"
`
