// Package presence renders classified views as Discord Rich Presence
// activities and publishes them, skipping repeats and reconnecting once when
// the IPC connection has gone away.
package presence

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/guardiancord/internal/activity"
	"tools.zach/dev/guardiancord/internal/discord"
	"tools.zach/dev/guardiancord/internal/logger"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	// maxFieldLen is Discord's byte limit for details, state and image text.
	maxFieldLen = 128
	// minFieldLen is the shortest text Discord accepts in those fields.
	minFieldLen = 2

	ellipsis = "…"

	TimestampsActivity = "activity"
	TimestampsNone     = "none"

	DefaultIdleState  = "Launching game..."
	DefaultIdleText   = "Starting D2 RPC"
	DefaultHiddenText = "Classified"
)

// DefaultAssets maps each icon to the art asset key uploaded to the Discord
// application. Idle and every unmapped mode use the main game art.
var DefaultAssets = map[activity.Icon]string{
	activity.IconIdle:         "main",
	activity.IconExploring:    "exploring",
	activity.IconStory:        "story",
	activity.IconNightfall:    "nightfall",
	activity.IconGambit:       "gambit",
	activity.IconCrucible:     "crucible",
	activity.IconIronBanner:   "iron_banner",
	activity.IconRaid:         "raid",
	activity.IconMenagerie:    "menagerie",
	activity.IconNightmare:    "nightmare_hunt",
	activity.IconVexOffensive: "vex_offensive",
	activity.IconTower:        "tower",
	activity.IconDungeon:      "dungeon",
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Client is the part of [discord.Client] the publisher drives.
type Client interface {
	Connect() error
	Connected() bool
	SetActivity(*discord.Activity) error
	ClearActivity() error
}

// Options controls how views are rendered.
type Options struct {
	IdleState  string
	IdleText   string
	Timestamps string
	// Assets overrides entries of DefaultAssets.
	Assets map[activity.Icon]string
	// HideActivities are doublestar globs matched against the headline.
	HideActivities []string
	HiddenText     string
}

// DefaultOptions returns the rendering used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		IdleState:  DefaultIdleState,
		IdleText:   DefaultIdleText,
		Timestamps: TimestampsActivity,
		HiddenText: DefaultHiddenText,
	}
}

// Publisher pushes views to Discord. It is safe for concurrent use.
type Publisher struct {
	client Client

	mu   sync.Mutex
	opts Options
	last string
}

// NewPublisher returns a Publisher writing through client.
func NewPublisher(client Client, opts Options) *Publisher {
	return &Publisher{client: client, opts: opts}
}

// ///////////////////////////////////////////////
// Publishing
// ///////////////////////////////////////////////

// Publish renders v and sends it unless it matches the last published
// activity. When the client is disconnected one reconnect is attempted first.
func (p *Publisher) Publish(v activity.View, started time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	act := Render(v, started, p.opts)
	digest := hashActivity(act)

	if !p.client.Connected() {
		p.last = ""
		if err := p.client.Connect(); err != nil {
			return fmt.Errorf("reconnecting to discord: %w", err)
		}
		slog.Info("reconnected to discord")
	}

	if digest == p.last {
		logger.Trace(slog.Default(), "presence unchanged, skipping", "details", act.Details, "state", act.State)
		return nil
	}
	if err := p.client.SetActivity(act); err != nil {
		return fmt.Errorf("setting activity: %w", err)
	}
	p.last = digest
	slog.Debug("presence updated", "details", act.Details, "state", act.State, "asset", assetOf(act))
	return nil
}

// Clear removes the presence.
func (p *Publisher) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = ""
	if !p.client.Connected() {
		return nil
	}
	if err := p.client.ClearActivity(); err != nil {
		return fmt.Errorf("clearing activity: %w", err)
	}
	return nil
}

// Reset forgets the last published activity so the next Publish always sends.
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.last = ""
	p.mu.Unlock()
}

// SetOptions swaps the rendering options. The next Publish always sends.
func (p *Publisher) SetOptions(opts Options) {
	p.mu.Lock()
	p.opts = opts
	p.last = ""
	p.mu.Unlock()
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// Render builds the Discord activity for v.
func Render(v activity.View, started time.Time, opts Options) *discord.Activity {
	if v.Idle() {
		return &discord.Activity{
			State: fitField(opts.IdleState),
			Assets: &discord.Assets{
				LargeImage: opts.asset(activity.IconIdle),
				LargeText:  fitField(opts.IdleText),
			},
		}
	}

	headline := v.Headline
	if headline != "" && opts.hidden(headline) {
		headline = opts.HiddenText
	}

	act := &discord.Activity{
		Details: fitField(v.Subtitle),
		Assets: &discord.Assets{
			LargeImage: opts.asset(v.Icon),
			LargeText:  fitField(tooltip(v)),
		},
	}
	if headline != "" {
		act.State = fitField(headline)
	}
	if opts.Timestamps == TimestampsActivity && !started.IsZero() {
		act.Timestamps = &discord.Timestamps{Start: started.Unix()}
	}
	return act
}

func tooltip(v activity.View) string {
	if v.Icon == activity.IconExploring {
		return "Exploring"
	}
	return v.Subtitle
}

func (o Options) asset(icon activity.Icon) string {
	if key, ok := o.Assets[icon]; ok && key != "" {
		return key
	}
	if key, ok := DefaultAssets[icon]; ok {
		return key
	}
	return DefaultAssets[activity.IconIdle]
}

func (o Options) hidden(headline string) bool {
	for _, pattern := range o.HideActivities {
		matched, err := doublestar.Match(pattern, headline)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// fitField trims s to maxFieldLen bytes on a rune boundary, ending with an
// ellipsis, and pads text Discord would reject as too short.
func fitField(s string) string {
	if len(s) > maxFieldLen {
		cut := maxFieldLen - len(ellipsis)
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + ellipsis
	}
	for s != "" && len(s) < minFieldLen {
		s += " "
	}
	return s
}

// hashActivity returns a SHA-256 hex digest of the activity for dedup.
func hashActivity(a *discord.Activity) string {
	data, err := json.Marshal(a)
	if err != nil {
		slog.Warn("failed to hash activity", "error", err)
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func assetOf(a *discord.Activity) string {
	if a.Assets == nil {
		return ""
	}
	return a.Assets.LargeImage
}
