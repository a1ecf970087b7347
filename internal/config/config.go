// Package config provides configuration loading and defaults for the
// guardiancord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// Credentials may come from the environment instead of the file.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/guardiancord/internal/activity"
	"tools.zach/dev/guardiancord/internal/atomicfile"
	"tools.zach/dev/guardiancord/internal/bungie"
	"tools.zach/dev/guardiancord/internal/paths"
)

// CurrentVersion is the config schema version this binary writes.
const CurrentVersion = 1

// Environment variables that override credentials in the file. The legacy
// names are the ones the .env file of earlier releases used.
const (
	EnvAPIKey         = "BUNGIE_API_KEY"
	EnvAPIKeyLegacy   = "API_KEY"
	EnvClientID       = "DISCORD_CLIENT_ID"
	EnvClientIDLegacy = "CLIENT_ID"
)

// ErrMissingCredentials is returned by [Config.CheckCredentials].
var ErrMissingCredentials = errors.New("missing credentials")

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int           `toml:"version"`
	Player  PlayerConfig  `toml:"player"`
	Bungie  BungieConfig  `toml:"bungie"`
	Discord DiscordConfig `toml:"discord"`
	Poll    PollConfig    `toml:"poll"`
	Display DisplayConfig `toml:"display"`
	Privacy PrivacyConfig `toml:"privacy"`
	Log     LogConfig     `toml:"log"`
}

// PlayerConfig identifies whose activity is shown.
type PlayerConfig struct {
	// Name is a display name or a Bungie name such as "Guardian#1234".
	Name string `toml:"name"`
	// Platform is All, PS4, XBox or Steam.
	Platform string `toml:"platform"`
}

// BungieConfig holds Bungie.net API settings.
type BungieConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryMax       int    `toml:"retry_max"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the Discord application ID for Rich Presence.
	AppID                    string `toml:"app_id"`
	ReconnectIntervalSeconds int    `toml:"reconnect_interval_seconds"`
}

// PollConfig holds the two waits of each poll cycle.
type PollConfig struct {
	FetchDelaySeconds   int `toml:"fetch_delay_seconds"`
	PublishDelaySeconds int `toml:"publish_delay_seconds"`
}

// DisplayConfig holds presence display settings.
type DisplayConfig struct {
	// IdleState is the bottom line while no activity is known.
	IdleState string `toml:"idle_state"`
	// IdleText is the image tooltip while no activity is known.
	IdleText string `toml:"idle_text"`
	// Timestamps is "activity" to show elapsed time, or "none".
	Timestamps string `toml:"timestamps"`
	// Assets overrides the Discord asset key per icon.
	Assets map[string]string `toml:"assets,omitempty"`
}

// PrivacyConfig holds activity-hiding settings.
type PrivacyConfig struct {
	// HideActivities are glob patterns matched against the activity line.
	HideActivities []string `toml:"hide_activities"`
	// HiddenText replaces a hidden activity line.
	HiddenText string `toml:"hidden_text"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console mirrors log output to stderr.
	Console bool `toml:"console"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Player: PlayerConfig{
			Platform: bungie.PlatformAll.String(),
		},
		Bungie: BungieConfig{
			BaseURL:        bungie.DefaultBaseURL,
			TimeoutSeconds: 10,
			RetryMax:       2,
		},
		Discord: DiscordConfig{
			ReconnectIntervalSeconds: 15,
		},
		Poll: PollConfig{
			FetchDelaySeconds:   7,
			PublishDelaySeconds: 8,
		},
		Display: DisplayConfig{
			IdleState:  "Launching game...",
			IdleText:   "Starting D2 RPC",
			Timestamps: "activity",
		},
		Privacy: PrivacyConfig{
			HideActivities: []string{},
			HiddenText:     "Classified",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			Console:   true,
		},
	}
}

// ExampleConfig returns the Config rendered into config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(dataDir string) (*Config, error) {
	cfg, err := LoadFile(filepath.Join(dataDir, paths.ConfigFile))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadFile parses path over the defaults without environment overrides or
// validation. Unknown keys are logged and ignored.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	return cfg, nil
}

// ApplyEnv overrides credentials from the environment. The current variable
// names win over the legacy ones.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := firstNonEmpty(getenv(EnvAPIKey), getenv(EnvAPIKeyLegacy)); v != "" {
		c.Bungie.APIKey = v
	}
	if v := firstNonEmpty(getenv(EnvClientID), getenv(EnvClientIDLegacy)); v != "" {
		c.Discord.AppID = v
	}
}

// Save writes the config to disk as TOML using an atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// SavePlayer records player in dataDir/config.toml, leaving every other
// value as the file has it.
func SavePlayer(dataDir string, player bungie.Player) error {
	path := filepath.Join(dataDir, paths.ConfigFile)
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	cfg.Player = PlayerConfig{Name: player.Name, Platform: player.Platform.String()}
	return cfg.Save(path)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d is newer than this build supports (%d)", c.Version, CurrentVersion)
	}

	if _, ok := bungie.LookupPlatform(c.Player.Platform); !ok {
		return fmt.Errorf("invalid player.platform %q: must be All, PS4, XBox, or Steam", c.Player.Platform)
	}

	if c.Bungie.BaseURL == "" {
		return errors.New("bungie.base_url must not be empty")
	}
	if c.Bungie.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0, got %d", c.Bungie.TimeoutSeconds)
	}
	if c.Bungie.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.Bungie.RetryMax)
	}

	if c.Discord.ReconnectIntervalSeconds <= 0 {
		return fmt.Errorf("reconnect_interval_seconds must be > 0, got %d", c.Discord.ReconnectIntervalSeconds)
	}

	if c.Poll.FetchDelaySeconds <= 0 {
		return fmt.Errorf("fetch_delay_seconds must be > 0, got %d", c.Poll.FetchDelaySeconds)
	}
	if c.Poll.PublishDelaySeconds <= 0 {
		return fmt.Errorf("publish_delay_seconds must be > 0, got %d", c.Poll.PublishDelaySeconds)
	}

	switch c.Display.Timestamps {
	case "activity", "none":
	default:
		return fmt.Errorf("invalid display.timestamps %q: must be activity or none", c.Display.Timestamps)
	}

	for icon := range c.Display.Assets {
		if !activity.Icon(icon).Valid() {
			return fmt.Errorf("unknown icon %q in display.assets", icon)
		}
	}

	for _, pattern := range c.Privacy.HideActivities {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy.hide_activities pattern %q", pattern)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// CheckCredentials reports which required credentials are still empty after
// the file and the environment have been applied.
func (c *Config) CheckCredentials() error {
	var missing []string
	if c.Bungie.APIKey == "" {
		missing = append(missing, "bungie.api_key ("+EnvAPIKey+")")
	}
	if c.Discord.AppID == "" {
		missing = append(missing, "discord.app_id ("+EnvClientID+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// Target returns the configured player. The platform must have passed
// [Config.Validate].
func (c *Config) Target() bungie.Player {
	return bungie.Player{
		Name:     strings.TrimSpace(c.Player.Name),
		Platform: bungie.ParsePlatform(c.Player.Platform),
	}
}

// IconAssets returns display.assets keyed by icon.
func (c *Config) IconAssets() map[activity.Icon]string {
	if len(c.Display.Assets) == 0 {
		return nil
	}
	out := make(map[activity.Icon]string, len(c.Display.Assets))
	for k, v := range c.Display.Assets {
		out[activity.Icon(k)] = v
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
