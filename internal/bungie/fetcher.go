package bungie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"tools.zach/dev/guardiancord/internal/activity"
	"tools.zach/dev/guardiancord/internal/atomicfile"
	"tools.zach/dev/guardiancord/internal/paths"
)

// API is the subset of [*Client] the [Fetcher] uses.
type API interface {
	SearchPlayer(ctx context.Context, platform Platform, name string) ([]UserInfoCard, error)
	CharacterActivities(ctx context.Context, membershipType int, membershipID string) (map[string]CharacterActivities, error)
	ActivityDefinition(ctx context.Context, hash uint32) (*Definition, error)
	ModeDefinition(ctx context.Context, hash uint32) (*Definition, error)
}

// ///////////////////////////////////////////////
// Membership Cache
// ///////////////////////////////////////////////

// Membership is a resolved player, cached so every poll does not repeat the
// search.
type Membership struct {
	// Name and Platform are the lookup key the membership was resolved for.
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`

	MembershipType int    `json:"membershipType"`
	MembershipID   string `json:"membershipId"`
	DisplayName    string `json:"displayName"`
}

func (m *Membership) matches(p Player) bool {
	return m != nil && m.Name == p.Name && m.Platform == p.Platform
}

// ///////////////////////////////////////////////
// Fetcher
// ///////////////////////////////////////////////

// Fetcher resolves a player's current activity into an [activity.Session].
type Fetcher struct {
	api API
	// cacheDir holds the membership cache file; empty disables the disk cache.
	cacheDir string

	mu         sync.Mutex
	membership *Membership
}

// NewFetcher creates a Fetcher. If cacheDir is non-empty the resolved
// membership is persisted there and reused across restarts.
func NewFetcher(api API, cacheDir string) *Fetcher {
	return &Fetcher{api: api, cacheDir: cacheDir}
}

// Fetch returns the session of the player's most recently started active
// character, or nil if no character is in an activity.
//
// A mode hash that is zero or fails to decode is replaced by
// [activity.GenericMode]; an activity without a display name is paired with
// [activity.OrbitMode].
func (f *Fetcher) Fetch(ctx context.Context, p Player) (*activity.Session, error) {
	m, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	chars, err := f.api.CharacterActivities(ctx, m.MembershipType, m.MembershipID)
	if err != nil {
		if staleMembership(err) {
			slog.Warn("dropping cached membership", "player", m.DisplayName, "membership_id", m.MembershipID)
			f.Forget()
		}
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("could not fetch data for %q: %w", m.DisplayName, err)
		}
		return nil, err
	}

	id, current, ok := latestActive(chars)
	if !ok {
		slog.Debug("no character is playing", "player", m.DisplayName, "characters", len(chars))
		return nil, nil
	}

	s, err := f.decode(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("character %s: %w", id, err)
	}
	return s, nil
}

// Forget drops the cached membership so the next fetch searches again.
func (f *Fetcher) Forget() {
	f.mu.Lock()
	f.membership = nil
	f.mu.Unlock()
	if f.cacheDir != "" {
		os.Remove(paths.DataDir{Root: f.cacheDir}.MembershipCache())
	}
}

// resolve returns the membership for p from memory, the disk cache, or a
// search, in that order.
func (f *Fetcher) resolve(ctx context.Context, p Player) (*Membership, error) {
	f.mu.Lock()
	cached := f.membership
	f.mu.Unlock()
	if cached.matches(p) {
		return cached, nil
	}
	if m := f.readCache(); m.matches(p) {
		f.store(m, false)
		return m, nil
	}

	cards, err := f.api.SearchPlayer(ctx, p.Platform, p.Name)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("player %q on %s: %w", p.Name, p.Platform, ErrNotFound)
	}
	card := primaryCard(cards)
	m := &Membership{
		Name:           p.Name,
		Platform:       p.Platform,
		MembershipType: card.MembershipType,
		MembershipID:   card.MembershipID,
		DisplayName:    card.DisplayName,
	}
	slog.Info("found player", "name", m.DisplayName, "membership_type", m.MembershipType)
	f.store(m, true)
	return m, nil
}

func (f *Fetcher) store(m *Membership, persist bool) {
	f.mu.Lock()
	f.membership = m
	f.mu.Unlock()
	if persist {
		f.writeCache(m)
	}
}

func (f *Fetcher) readCache() *Membership {
	if f.cacheDir == "" {
		return nil
	}
	b, err := os.ReadFile(paths.DataDir{Root: f.cacheDir}.MembershipCache())
	if err != nil {
		return nil
	}
	var m Membership
	if err := json.Unmarshal(b, &m); err != nil {
		slog.Debug("ignoring corrupt membership cache", "error", err)
		return nil
	}
	return &m
}

func (f *Fetcher) writeCache(m *Membership) {
	if f.cacheDir == "" {
		return
	}
	path := paths.DataDir{Root: f.cacheDir}.MembershipCache()
	if err := atomicfile.WriteJSON(path, m, 0o644); err != nil {
		slog.Debug("failed to write membership cache", "error", err)
	}
}

// staleMembership reports whether err means the membership ID itself is no
// longer valid, so it has to be searched for again.
func staleMembership(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Code == errDestinyAccountNotFound || apiErr.Status == "DestinyAccountNotFound")
}

// primaryCard picks the cross-save primary membership when the search
// returned several, otherwise the first card.
func primaryCard(cards []UserInfoCard) UserInfoCard {
	for _, c := range cards {
		if c.CrossSaveOverride != 0 && c.CrossSaveOverride == c.MembershipType {
			return c
		}
	}
	return cards[0]
}

// latestActive returns the character with a non-zero activity hash that
// started its activity most recently. Ties break on character ID.
func latestActive(chars map[string]CharacterActivities) (string, CharacterActivities, bool) {
	var bestID string
	var best CharacterActivities
	found := false
	for id, c := range chars {
		if c.CurrentActivityHash == 0 {
			continue
		}
		if !found || c.DateActivityStarted.After(best.DateActivityStarted) ||
			(c.DateActivityStarted.Equal(best.DateActivityStarted) && id < bestID) {
			bestID, best, found = id, c, true
		}
	}
	return bestID, best, found
}

// ///////////////////////////////////////////////
// Definition Decoding
// ///////////////////////////////////////////////

// decode resolves the activity and mode definitions concurrently.
func (f *Fetcher) decode(ctx context.Context, c CharacterActivities) (*activity.Session, error) {
	activityHash := NormalizeHash(c.CurrentActivityHash)
	modeHash := NormalizeHash(c.CurrentActivityModeHash)

	var actDef *Definition
	var mode *activity.Mode

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		def, err := f.api.ActivityDefinition(gctx, activityHash)
		if err != nil {
			return err
		}
		actDef = def
		return nil
	})
	g.Go(func() error {
		mode = f.decodeMode(gctx, modeHash)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &activity.Activity{
		Hash:        activityHash,
		Description: actDef.DisplayProperties.Description,
	}
	if name := actDef.DisplayProperties.Name; name != nil && *name != "" {
		a.Name = *name
	} else {
		mode = activity.OrbitMode()
	}
	return &activity.Session{Activity: a, Mode: mode, Started: c.DateActivityStarted}, nil
}

// decodeMode resolves a mode hash, substituting [activity.GenericMode] when
// the hash is zero or unresolvable.
func (f *Fetcher) decodeMode(ctx context.Context, hash uint32) *activity.Mode {
	if hash == 0 {
		return activity.GenericMode()
	}
	def, err := f.api.ModeDefinition(ctx, hash)
	if err != nil {
		slog.Warn("mode decode failed, using generic mode", "hash", hash, "error", err)
		return activity.GenericMode()
	}
	m := &activity.Mode{
		Hash:        hash,
		Banner:      def.PGCRImage,
		Description: def.DisplayProperties.Description,
	}
	if def.DisplayProperties.Name != nil {
		m.Name = *def.DisplayProperties.Name
	}
	return m
}
