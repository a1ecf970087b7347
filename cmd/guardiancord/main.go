// Package main implements the guardiancord daemon, which polls a Destiny 2
// player's current activity and publishes it as Discord Rich Presence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	rootpkg "tools.zach/dev/guardiancord"
	"tools.zach/dev/guardiancord/internal/bungie"
	"tools.zach/dev/guardiancord/internal/config"
	"tools.zach/dev/guardiancord/internal/discord"
	"tools.zach/dev/guardiancord/internal/logger"
	"tools.zach/dev/guardiancord/internal/paths"
	"tools.zach/dev/guardiancord/internal/poller"
	"tools.zach/dev/guardiancord/internal/presence"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// resolveVersion returns [version] when it was set at build time, otherwise
// a "dev+<hash>" tag built from the VCS info Go embeds.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Startup Helpers
// ///////////////////////////////////////////////

// seedConfig writes the embedded default config when none exists.
func seedConfig(dir paths.DataDir) error {
	if _, err := os.Stat(dir.Config()); !os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(dir.Config(), rootpkg.DefaultConfigTOML, 0o600)
}

func logLevel(cfg *config.Config) slog.Level {
	return logger.ParseLevel(cfg.Log.Level)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", paths.Default().Root, "Data directory for config, cache, and logs")
	playerName := flag.String("player", "", "Player name or Bungie name (overrides config)")
	platform := flag.String("platform", "", "Platform: All, PS4, XBox, or Steam (overrides config)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(paths.BinaryName, resolveVersion())
		return
	}
	if *platform != "" {
		if _, ok := bungie.LookupPlatform(*platform); !ok {
			fmt.Fprintf(os.Stderr, "fatal: invalid -platform %q: must be All, PS4, XBox, or Steam\n", *platform)
			os.Exit(2)
		}
	}

	os.Exit(run(options{
		dir:   paths.DataDir{Root: *dataDir},
		flags: playerFlags{name: *playerName, platform: *platform},
		stdin: os.Stdin,
	}))
}

type options struct {
	dir   paths.DataDir
	flags playerFlags
	stdin io.Reader
}

// run starts the daemon and blocks until a shutdown signal. It returns the
// process exit code.
func run(opts options) int {
	dir := opts.dir
	if err := dir.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	if alive, pid := runningPID(dir); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		return 1
	}

	if err := seedConfig(dir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(dir.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(logLevel(cfg))
	logOpts := logger.Options{Path: dir.Log(), Level: level, MaxSizeMB: cfg.Log.MaxSizeMB}
	if cfg.Log.Console {
		logOpts.Console = os.Stderr
	}
	log, logCloser := logger.NewLogger(logOpts)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("guardiancord starting", "version", resolveVersion(), "data_dir", dir.Root)

	if err := cfg.CheckCredentials(); err != nil {
		logger.Fail(log, "cannot start", "error", err)
		fmt.Fprintf(os.Stderr, "fatal: %v\nset them in %s or the environment\n", err, dir.Config())
		return 1
	}

	player, prompted, err := resolvePlayer(cfg, opts.flags, opts.stdin, os.Stdout)
	if err != nil {
		slog.Error("no player to track", "error", err)
		return 1
	}
	if prompted {
		if err := config.SavePlayer(dir.Root, player); err != nil {
			slog.Warn("failed to save player name", "error", err)
		}
	}

	lock, err := acquirePID(dir)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		return 1
	}
	defer lock.release()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	dc := discord.NewClient(cfg.Discord.AppID)
	reconnect := time.Duration(cfg.Discord.ReconnectIntervalSeconds) * time.Second
	if err := connectWithRetry(ctx, dc, reconnect); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		slog.Error("failed to connect to Discord", "error", err)
		return 1
	}
	defer dc.Close()
	slog.Info("connected to Discord", "app_id", dc.AppID())

	api := bungie.NewClient(cfg.Bungie.APIKey, bungieOptions(cfg)...)
	fetcher := bungie.NewFetcher(api, dir.Root)
	pub := presence.NewPublisher(dc, presenceOptions(cfg))
	p := poller.New(fetcher, pub, pollOptions(cfg), player)
	slog.Info("tracking player", "player", player.Name, "platform", player.Platform)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })

	watcher, err := config.Watch(dir.Root)
	if err != nil {
		slog.Warn("config reload disabled", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			slog.Info("using polling mode for config watching")
		}
		r := &reloader{dataDir: dir.Root, flags: opts.flags, level: level, publisher: pub, poller: p, current: cfg}
		g.Go(func() error {
			r.run(gctx, watcher.Events())
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon stopped", "error", err)
	}

	if err := pub.Clear(); err != nil {
		slog.Debug("failed to clear presence", "error", err)
	}
	slog.Info("guardiancord stopped")
	return 0
}
