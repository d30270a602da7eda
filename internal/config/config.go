// Package config loads the console settings file and fills in defaults for
// anything the user left out.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the root of the settings file.
type Settings struct {
	// Provider selects the in-process streaming backend: "anthropic" or
	// "openai". Remote mode ignores it.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// EventURL is the websocket endpoint of the remote event stream. Empty
	// means local-producer mode only.
	EventURL string `yaml:"event_url"`

	// RedisURL enables the durable history store. Empty keeps history in
	// memory.
	RedisURL        string `yaml:"redis_url"`
	HistoryTTLHours int    `yaml:"history_ttl_hours"`

	ExportTheme    string   `yaml:"export_theme"`
	Terminal       Terminal `yaml:"terminal"`
	GitPollSeconds int      `yaml:"git_poll_seconds"`
	LogFile        string   `yaml:"log_file"`
	VerboseEvents  bool     `yaml:"verbose_events"`
}

// Terminal tunes the command lifecycle tracker.
type Terminal struct {
	// FulltermCommands extends the builtin list of leading tokens that flip
	// a session into fullterm rendering the moment the command starts.
	FulltermCommands []string `yaml:"fullterm_commands"`

	// FastCommands extends the builtin allow-list of commands that finish
	// too quickly to be worth a foreground-process probe.
	FastCommands []string `yaml:"fast_commands"`

	ProbeDelayMs int `yaml:"probe_delay_ms"`
}

// Load reads the settings file at path. A missing file is not an error; it
// yields pure defaults.
func Load(path string) (Settings, error) {
	cfg := Settings{}
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyDefaults()
				return cfg, nil
			}
			return Settings{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Settings) applyDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = "anthropic"
	}
}

// GitPollEvery is the interval of the background git status refresh.
func (c Settings) GitPollEvery() time.Duration {
	sec := c.GitPollSeconds
	if sec <= 0 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

// HistoryTTL is how long redis keeps a session's history. Zero config means
// keep forever.
func (c Settings) HistoryTTL() time.Duration {
	if c.HistoryTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.HistoryTTLHours) * time.Hour
}

// ProbeDelay is how long after command_start the foreground-process probe
// fires.
func (c Terminal) ProbeDelay() time.Duration {
	ms := c.ProbeDelayMs
	if ms <= 0 {
		ms = 800
	}
	return time.Duration(ms) * time.Millisecond
}
