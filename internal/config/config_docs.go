package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps dotted TOML field paths to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Player
	"player.name": {
		Comment: "Whose activity to show. A display name or a Bungie name with its code.\nLeave empty to be asked on startup.",
		Alternatives: []string{
			`name = "Guardian#1234"`,
		},
	},
	"player.platform": {
		Comment: "Platform to search: All, PS4, XBox or Steam.",
		Alternatives: []string{
			`platform = "Steam"`,
		},
	},

	// Bungie
	"bungie.api_key": {
		Comment: "Bungie.net API key from https://www.bungie.net/en/Application\nThe BUNGIE_API_KEY environment variable (or legacy API_KEY) takes precedence.",
	},
	"bungie.base_url": {},
	"bungie.timeout_seconds": {
		Comment: "Per-request timeout and retry count for API calls.",
	},
	"bungie.retry_max": {},

	// Discord
	"discord.app_id": {
		Comment: "Discord application ID whose Rich Presence assets are used.\nThe DISCORD_CLIENT_ID environment variable (or legacy CLIENT_ID) takes precedence.",
	},
	"discord.reconnect_interval_seconds": {
		Comment: "Wait between connection attempts while Discord is not running.",
	},

	// Poll
	"poll.fetch_delay_seconds": {
		Comment: "Each cycle fetches the activity, waits fetch_delay_seconds, publishes,\nthen waits publish_delay_seconds.",
	},
	"poll.publish_delay_seconds": {},

	// Display
	"display.idle_state": {
		Comment: "Shown while no character is in an activity.",
	},
	"display.idle_text": {},
	"display.timestamps": {
		Comment: "Elapsed timer. Options: \"activity\" (since the activity started), \"none\"",
		Alternatives: []string{
			`timestamps = "none"`,
		},
	},
	"display.assets": {
		Comment: "Discord asset key per icon. Keys: idle, exploring, story, nightfall, gambit,\ncrucible, iron_banner, raid, menagerie, nightmare_hunt, vex_offensive, tower, dungeon",
		Alternatives: []string{
			`[display.assets]`,
			`raid = "raid_garden"`,
		},
	},

	// Privacy
	"privacy.hide_activities": {
		Comment: "Glob patterns matched against the activity line; matches show hidden_text.",
		Alternatives: []string{
			`hide_activities = ["Nightmare Hunt*", "The Shattered Throne"]`,
		},
	},
	"privacy.hidden_text": {},

	// Log
	"log.level": {
		Comment: "Minimum log level: trace, debug, info, warn, error",
	},
	"log.max_size_mb": {
		Comment: "Rotate daemon.log after this many megabytes.",
	},
	"log.console": {
		Comment: "Also write log lines to stderr.",
	},
}
