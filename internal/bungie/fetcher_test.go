// Tests for [Fetcher] covering membership resolution and caching, character
// selection, and the orbit and generic-mode substitutions.
package bungie

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"tools.zach/dev/guardiancord/internal/activity"
	"tools.zach/dev/guardiancord/internal/paths"
)

// ///////////////////////////////////////////////
// Fake API
// ///////////////////////////////////////////////

// fakeAPI is an in-memory [API] with call counters.
type fakeAPI struct {
	mu sync.Mutex

	cards     []UserInfoCard
	searchErr error
	searches  int

	chars      map[string]CharacterActivities
	profileErr error

	activities map[uint32]*Definition
	modes      map[uint32]*Definition
}

func (f *fakeAPI) SearchPlayer(_ context.Context, _ Platform, name string) ([]UserInfoCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.cards) == 0 {
		return nil, ErrNotFound
	}
	return f.cards, nil
}

func (f *fakeAPI) CharacterActivities(context.Context, int, string) (map[string]CharacterActivities, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.chars, nil
}

func (f *fakeAPI) ActivityDefinition(_ context.Context, hash uint32) (*Definition, error) {
	if d, ok := f.activities[hash]; ok {
		return d, nil
	}
	return nil, &DecodeError{Entity: EntityActivity, Hash: hash, Err: ErrNotFound}
}

func (f *fakeAPI) ModeDefinition(_ context.Context, hash uint32) (*Definition, error) {
	if d, ok := f.modes[hash]; ok {
		return d, nil
	}
	return nil, &DecodeError{Entity: EntityActivityMode, Hash: hash, Err: ErrNotFound}
}

func def(hash int64, name string, banner string) *Definition {
	return &Definition{Hash: hash, DisplayProperties: DisplayProperties{Name: &name}, PGCRImage: banner}
}

var steamCard = UserInfoCard{MembershipType: 3, MembershipID: "4611686018400000001", DisplayName: "Cayde"}

var player = Player{Name: "Cayde", Platform: PlatformSteam}

// ///////////////////////////////////////////////
// Fetch
// ///////////////////////////////////////////////

func TestFetch_ActiveCharacter(t *testing.T) {
	started := time.Date(2019, 10, 1, 18, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{
			"a": {CurrentActivityHash: 0},
			"b": {CurrentActivityHash: 100, CurrentActivityModeHash: 200, DateActivityStarted: started},
		},
		activities: map[uint32]*Definition{100: def(100, "Landing Zone", "")},
		modes:      map[uint32]*Definition{200: def(200, "Explore", "/img/patrol.jpg")},
	}
	f := NewFetcher(api, "")

	s, err := f.Fetch(context.Background(), player)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := &activity.Session{
		Activity: &activity.Activity{Hash: 100, Name: "Landing Zone"},
		Mode:     &activity.Mode{Hash: 200, Name: "Explore", Banner: "/img/patrol.jpg"},
		Started:  started,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_NoActiveSession(t *testing.T) {
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{
			"a": {CurrentActivityHash: 0},
			"b": {CurrentActivityHash: 0},
		},
	}
	s, err := NewFetcher(api, "").Fetch(context.Background(), player)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s != nil {
		t.Errorf("session = %+v, want nil", s)
	}
}

func TestFetch_PicksMostRecentCharacter(t *testing.T) {
	older := time.Date(2019, 10, 1, 18, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{
			"old": {CurrentActivityHash: 1, CurrentActivityModeHash: 9, DateActivityStarted: older},
			"new": {CurrentActivityHash: 2, CurrentActivityModeHash: 9, DateActivityStarted: newer},
		},
		activities: map[uint32]*Definition{1: def(1, "Old", ""), 2: def(2, "New", "")},
		modes:      map[uint32]*Definition{9: def(9, "Raid", "")},
	}
	s, err := NewFetcher(api, "").Fetch(context.Background(), player)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Activity.Name != "New" {
		t.Errorf("picked %q, want New", s.Activity.Name)
	}
}

func TestFetch_OrbitSentinel(t *testing.T) {
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{
			"a": {CurrentActivityHash: 82913930, CurrentActivityModeHash: 9},
		},
		activities: map[uint32]*Definition{82913930: {Hash: 82913930}},
		modes:      map[uint32]*Definition{9: def(9, "Patrol", "")},
	}
	s, err := NewFetcher(api, "").Fetch(context.Background(), player)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if diff := cmp.Diff(activity.OrbitMode(), s.Mode); diff != "" {
		t.Errorf("mode mismatch (-want +got):\n%s", diff)
	}
	if v := activity.ClassifySession(s); v.Subtitle != "In Orbit" {
		t.Errorf("classified as %+v, want In Orbit", v)
	}
}

func TestFetch_ModeFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		modeHash int64
	}{
		{"undecodable mode", 404},
		{"zero mode hash", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				cards:      []UserInfoCard{steamCard},
				chars:      map[string]CharacterActivities{"a": {CurrentActivityHash: 1, CurrentActivityModeHash: tt.modeHash}},
				activities: map[uint32]*Definition{1: def(1, "Vex Offensive", "")},
			}
			s, err := NewFetcher(api, "").Fetch(context.Background(), player)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if diff := cmp.Diff(activity.GenericMode(), s.Mode); diff != "" {
				t.Errorf("mode mismatch (-want +got):\n%s", diff)
			}
			if v := activity.ClassifySession(s); v.Icon != activity.IconVexOffensive {
				t.Errorf("classified as %+v, want vex offensive", v)
			}
		})
	}
}

func TestFetch_ActivityDecodeError(t *testing.T) {
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{"a": {CurrentActivityHash: 1, CurrentActivityModeHash: 9}},
		modes: map[uint32]*Definition{9: def(9, "Raid", "")},
	}
	_, err := NewFetcher(api, "").Fetch(context.Background(), player)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if decErr.Hash != 1 {
		t.Errorf("Hash = %d, want 1", decErr.Hash)
	}
}

func TestFetch_Errors(t *testing.T) {
	upstream := &APIError{Op: "get profile", Code: 5, Status: "SystemDisabled"}
	tests := []struct {
		name    string
		api     *fakeAPI
		wantErr error
	}{
		{"player not found", &fakeAPI{}, ErrNotFound},
		{"empty profile", &fakeAPI{cards: []UserInfoCard{steamCard}, profileErr: ErrNotFound}, ErrNotFound},
		{"upstream failure", &fakeAPI{cards: []UserInfoCard{steamCard}, profileErr: upstream}, upstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFetcher(tt.api, "").Fetch(context.Background(), player)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Membership Cache
// ///////////////////////////////////////////////

func TestFetch_MembershipCachedInMemory(t *testing.T) {
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{"a": {}},
	}
	f := NewFetcher(api, "")
	for range 3 {
		if _, err := f.Fetch(context.Background(), player); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if api.searches != 1 {
		t.Errorf("searches = %d, want 1", api.searches)
	}

	// A different player triggers a new search.
	if _, err := f.Fetch(context.Background(), Player{Name: "Ikora", Platform: PlatformSteam}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.searches != 2 {
		t.Errorf("searches after retarget = %d, want 2", api.searches)
	}
}

func TestFetch_MembershipCachedOnDisk(t *testing.T) {
	dir := t.TempDir()
	api := &fakeAPI{
		cards: []UserInfoCard{steamCard},
		chars: map[string]CharacterActivities{"a": {}},
	}
	if _, err := NewFetcher(api, dir).Fetch(context.Background(), player); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, paths.MembershipCacheFile)); err != nil {
		t.Fatalf("membership cache not written: %v", err)
	}

	// A fresh fetcher (new process) reuses the cached membership.
	f := NewFetcher(api, dir)
	if _, err := f.Fetch(context.Background(), player); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.searches != 1 {
		t.Errorf("searches = %d, want 1", api.searches)
	}

	f.Forget()
	if _, err := os.Stat(filepath.Join(dir, paths.MembershipCacheFile)); !os.IsNotExist(err) {
		t.Errorf("Forget left the cache file, stat err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), player); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.searches != 2 {
		t.Errorf("searches after Forget = %d, want 2", api.searches)
	}
}

func TestFetch_StaleMembershipIsForgotten(t *testing.T) {
	tests := []struct {
		name       string
		profileErr error
	}{
		{"profile not found", ErrNotFound},
		{"account not found", &APIError{Op: "get profile", Code: 1601, Status: "DestinyAccountNotFound"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			api := &fakeAPI{cards: []UserInfoCard{steamCard}, chars: map[string]CharacterActivities{"a": {}}}
			if _, err := NewFetcher(api, dir).Fetch(context.Background(), player); err != nil {
				t.Fatalf("Fetch: %v", err)
			}

			// A new process loads the cached membership, which now fails.
			api.profileErr = tt.profileErr
			f := NewFetcher(api, dir)
			if _, err := f.Fetch(context.Background(), player); err == nil {
				t.Fatal("Fetch succeeded, want error")
			}
			if _, err := os.Stat(filepath.Join(dir, paths.MembershipCacheFile)); !os.IsNotExist(err) {
				t.Errorf("cache file kept after failure, stat err = %v", err)
			}

			api.profileErr = nil
			if _, err := f.Fetch(context.Background(), player); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if api.searches != 2 {
				t.Errorf("searches = %d, want 2", api.searches)
			}
		})
	}
}

func TestFetch_TransientErrorKeepsMembership(t *testing.T) {
	api := &fakeAPI{cards: []UserInfoCard{steamCard}, chars: map[string]CharacterActivities{"a": {}}}
	f := NewFetcher(api, "")
	if _, err := f.Fetch(context.Background(), player); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	api.profileErr = &APIError{Op: "get profile", Code: 5, Status: "SystemDisabled"}
	f.Fetch(context.Background(), player)
	api.profileErr = nil
	if _, err := f.Fetch(context.Background(), player); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if api.searches != 1 {
		t.Errorf("searches = %d, want 1", api.searches)
	}
}

// emptySearchAPI returns no cards and no error.
type emptySearchAPI struct{ fakeAPI }

func (*emptySearchAPI) SearchPlayer(context.Context, Platform, string) ([]UserInfoCard, error) {
	return nil, nil
}

func TestFetch_EmptySearchIsNotFound(t *testing.T) {
	_, err := NewFetcher(&emptySearchAPI{}, "").Fetch(context.Background(), player)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPrimaryCard(t *testing.T) {
	cards := []UserInfoCard{
		{MembershipType: 1, MembershipID: "psn", CrossSaveOverride: 3},
		{MembershipType: 3, MembershipID: "steam", CrossSaveOverride: 3},
	}
	if got := primaryCard(cards); got.MembershipID != "steam" {
		t.Errorf("primaryCard = %q, want steam", got.MembershipID)
	}
	if got := primaryCard(cards[:1]); got.MembershipID != "psn" {
		t.Errorf("primaryCard(single) = %q, want psn", got.MembershipID)
	}
}
