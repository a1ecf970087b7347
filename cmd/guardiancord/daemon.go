package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"tools.zach/dev/guardiancord/internal/bungie"
	"tools.zach/dev/guardiancord/internal/config"
	"tools.zach/dev/guardiancord/internal/poller"
	"tools.zach/dev/guardiancord/internal/presence"
)

// ///////////////////////////////////////////////
// Player Resolution
// ///////////////////////////////////////////////

// errNoPlayer is returned when no player is configured and none was entered.
var errNoPlayer = errors.New("no player name configured")

// playerFlags are the -player and -platform values; empty means unset.
type playerFlags struct {
	name     string
	platform string
}

// apply overlays the flags onto p.
func (f playerFlags) apply(p bungie.Player) bungie.Player {
	if name := strings.TrimSpace(f.name); name != "" {
		p.Name = name
	}
	if f.platform != "" {
		p.Platform = bungie.ParsePlatform(f.platform)
	}
	return p
}

// resolvePlayer returns the configured player with flags applied. When the
// name is still empty it prompts on in; prompted reports that the name came
// from there.
func resolvePlayer(cfg *config.Config, flags playerFlags, in io.Reader, out io.Writer) (p bungie.Player, prompted bool, err error) {
	p = flags.apply(cfg.Target())
	if p.Name != "" {
		return p, false, nil
	}

	fmt.Fprint(out, "Username: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return p, false, fmt.Errorf("read player name: %w", err)
	}
	p.Name = strings.TrimSpace(line)
	if p.Name == "" {
		return p, false, errNoPlayer
	}
	return p, true, nil
}

// ///////////////////////////////////////////////
// Discord Connect
// ///////////////////////////////////////////////

// connector is the part of discord.Client needed to connect.
type connector interface {
	Connect() error
}

const maxConnectAttempts = 10

// connectWithRetry tries to connect up to maxConnectAttempts times, waiting
// interval between failures. It stops early when ctx is cancelled.
func connectWithRetry(ctx context.Context, c connector, interval time.Duration) error {
	var err error
	for i := range maxConnectAttempts {
		if err = c.Connect(); err == nil {
			return nil
		}
		slog.Warn("Discord connect attempt failed", "attempt", i+1, "of", maxConnectAttempts, "error", err)
		if i == maxConnectAttempts-1 {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", maxConnectAttempts, err)
}

// ///////////////////////////////////////////////
// Config Builders
// ///////////////////////////////////////////////

func presenceOptions(cfg *config.Config) presence.Options {
	return presence.Options{
		IdleState:      cfg.Display.IdleState,
		IdleText:       cfg.Display.IdleText,
		Timestamps:     cfg.Display.Timestamps,
		Assets:         cfg.IconAssets(),
		HideActivities: cfg.Privacy.HideActivities,
		HiddenText:     cfg.Privacy.HiddenText,
	}
}

func pollOptions(cfg *config.Config) poller.Options {
	return poller.Options{
		FetchDelay:   time.Duration(cfg.Poll.FetchDelaySeconds) * time.Second,
		PublishDelay: time.Duration(cfg.Poll.PublishDelaySeconds) * time.Second,
	}
}

func bungieOptions(cfg *config.Config) []bungie.Option {
	return []bungie.Option{
		bungie.WithBaseURL(cfg.Bungie.BaseURL),
		bungie.WithRetry(cfg.Bungie.RetryMax, time.Duration(cfg.Bungie.TimeoutSeconds)*time.Second),
	}
}

// ///////////////////////////////////////////////
// Config Reload
// ///////////////////////////////////////////////

// reloader applies a changed config.toml to the running daemon.
type reloader struct {
	dataDir   string
	flags     playerFlags
	level     *slog.LevelVar
	publisher *presence.Publisher
	poller    *poller.Poller
	// current is the config in effect.
	current *config.Config
}

// run reloads on every watcher event until ctx is done.
func (r *reloader) run(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			cfg, err := config.Load(r.dataDir)
			if err != nil {
				slog.Warn("ignoring invalid config change", "error", err)
				continue
			}
			r.apply(cfg)
		}
	}
}

// apply switches the live settings to cfg. Settings that are bound at
// startup are reported instead.
func (r *reloader) apply(cfg *config.Config) {
	r.level.Set(logLevel(cfg))
	r.publisher.SetOptions(presenceOptions(cfg))

	player := r.flags.apply(cfg.Target())
	if player.Name == "" {
		player.Name = r.poller.Player().Name
	}
	r.poller.SetPlayer(player)

	if changed := restartOnly(r.current, cfg); len(changed) > 0 {
		slog.Warn("config changes take effect after restart", "keys", strings.Join(changed, ","))
	}
	r.current = cfg
	slog.Info("config reloaded")
}

// restartOnly lists settings that differ between old and new but are only
// read at startup.
func restartOnly(old, cur *config.Config) []string {
	var keys []string
	if old.Bungie != cur.Bungie {
		keys = append(keys, "bungie")
	}
	if old.Discord != cur.Discord {
		keys = append(keys, "discord")
	}
	if old.Poll != cur.Poll {
		keys = append(keys, "poll")
	}
	if old.Log.MaxSizeMB != cur.Log.MaxSizeMB || old.Log.Console != cur.Log.Console {
		keys = append(keys, "log")
	}
	return keys
}
