// Package poller drives the fetch, classify, publish cycle.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"tools.zach/dev/guardiancord/internal/activity"
	"tools.zach/dev/guardiancord/internal/bungie"
)

const (
	DefaultFetchDelay   = 7 * time.Second
	DefaultPublishDelay = 8 * time.Second
)

// Fetcher returns the player's current session, or nil when they are not
// in an activity.
type Fetcher interface {
	Fetch(ctx context.Context, p bungie.Player) (*activity.Session, error)
}

// Publisher shows a view.
type Publisher interface {
	Publish(v activity.View, started time.Time) error
}

// Options sets the two waits of each cycle.
type Options struct {
	FetchDelay   time.Duration
	PublishDelay time.Duration
}

// Poller repeatedly fetches a player's session and publishes its view.
type Poller struct {
	fetcher   Fetcher
	publisher Publisher
	opts      Options
	player    atomic.Pointer[bungie.Player]
}

// New returns a Poller for player. Zero delays take the defaults.
func New(f Fetcher, pub Publisher, opts Options, player bungie.Player) *Poller {
	if opts.FetchDelay <= 0 {
		opts.FetchDelay = DefaultFetchDelay
	}
	if opts.PublishDelay <= 0 {
		opts.PublishDelay = DefaultPublishDelay
	}
	p := &Poller{fetcher: f, publisher: pub, opts: opts}
	p.player.Store(&player)
	return p
}

// SetPlayer retargets the poller; the next cycle uses the new player.
func (p *Poller) SetPlayer(player bungie.Player) {
	prev := p.player.Swap(&player)
	if *prev != player {
		slog.Info("poll target changed", "player", player.Name, "platform", player.Platform)
	}
}

// Player returns the current target.
func (p *Poller) Player() bungie.Player {
	return *p.player.Load()
}

// Run publishes the idle view, then cycles until ctx is cancelled. It always
// returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.publish(activity.IdleView(), time.Time{})

	for {
		if err := p.cycle(ctx); err != nil {
			return err
		}
	}
}

// cycle runs one fetch, wait, publish, wait round. Only context
// cancellation is returned.
func (p *Poller) cycle(ctx context.Context) error {
	player := p.Player()
	session, err := p.fetcher.Fetch(ctx, player)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logFetchError(player, err)
	}

	if err := sleep(ctx, p.opts.FetchDelay); err != nil {
		return err
	}

	if err == nil {
		if session == nil {
			slog.Debug("no active character", "player", player.Name)
			p.publish(activity.IdleView(), time.Time{})
		} else {
			view, rule := activity.ClassifySessionRule(session)
			slog.Debug("classified activity",
				"activity", session.Activity.Name,
				"mode", session.Mode.Name,
				"rule", rule)
			p.publish(view, session.Started)
		}
	}

	return sleep(ctx, p.opts.PublishDelay)
}

func (p *Poller) publish(v activity.View, started time.Time) {
	if err := p.publisher.Publish(v, started); err != nil {
		slog.Warn("failed to publish presence", "error", err)
	}
}

func logFetchError(player bungie.Player, err error) {
	var apiErr *bungie.APIError
	var decErr *bungie.DecodeError
	switch {
	case errors.As(err, &decErr):
		slog.Error("failed to decode definition", "entity", decErr.Entity, "hash", decErr.Hash, "error", err)
	case errors.Is(err, bungie.ErrNotFound):
		slog.Warn("player data not found", "player", player.Name, "platform", player.Platform, "error", err)
	case errors.As(err, &apiErr):
		slog.Error("bungie request failed", "status", apiErr.Status, "code", apiErr.Code, "error", err)
	default:
		slog.Error("fetch failed", "player", player.Name, "error", err)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
