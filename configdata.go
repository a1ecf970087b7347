// Package guardiancord embeds the default configuration for the daemon.
//
// config.default.toml is generated by cmd/genconfig; run go generate after
// changing config defaults or docs.
package guardiancord

import _ "embed"

// DefaultConfigTOML is written to the data directory on first run.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
