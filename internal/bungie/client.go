// Package bungie provides a client for the Bungie.net Destiny 2 API and a
// [Fetcher] that turns a player's profile into an [activity.Session].
//
// Requests go through a shared go-retryablehttp client. Every response is
// wrapped in Bungie's envelope; non-success envelopes surface as [*APIError],
// empty successful lookups as [ErrNotFound], and unresolvable manifest
// hashes as [*DecodeError].
package bungie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the Bungie.net platform API root.
const DefaultBaseURL = "https://www.bungie.net/Platform"

// Manifest entity types used by the fetcher.
const (
	EntityActivity     = "DestinyActivityDefinition"
	EntityActivityMode = "DestinyActivityModeDefinition"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// ///////////////////////////////////////////////
// Wire Types
// ///////////////////////////////////////////////

// envelope is the wrapper Bungie puts around every response.
type envelope struct {
	Response        json.RawMessage `json:"Response"`
	ErrorCode       int             `json:"ErrorCode"`
	ErrorStatus     string          `json:"ErrorStatus"`
	Message         string          `json:"Message"`
	ThrottleSeconds int             `json:"ThrottleSeconds"`
}

// UserInfoCard is one membership returned by a player search.
type UserInfoCard struct {
	MembershipType              int    `json:"membershipType"`
	MembershipID                string `json:"membershipId"`
	DisplayName                 string `json:"displayName"`
	BungieGlobalDisplayName     string `json:"bungieGlobalDisplayName,omitempty"`
	BungieGlobalDisplayNameCode int    `json:"bungieGlobalDisplayNameCode,omitempty"`
	CrossSaveOverride           int    `json:"crossSaveOverride"`
}

// CharacterActivities is the CharacterActivities profile component for one
// character.
type CharacterActivities struct {
	DateActivityStarted     time.Time `json:"dateActivityStarted"`
	CurrentActivityHash     int64     `json:"currentActivityHash"`
	CurrentActivityModeHash int64     `json:"currentActivityModeHash"`
	CurrentActivityModeType int       `json:"currentActivityModeType"`
}

// DisplayProperties is the common name/description block of a definition.
// Name is a pointer because orbit activities come back without one.
type DisplayProperties struct {
	Name        *string `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	HasIcon     bool    `json:"hasIcon"`
}

// Definition is the subset of a manifest definition the fetcher reads. It
// covers both activity and activity mode definitions.
type Definition struct {
	Hash              int64             `json:"hash"`
	DisplayProperties DisplayProperties `json:"displayProperties"`
	PGCRImage         string            `json:"pgcrImage"`
}

// NormalizeHash maps a definition hash to its unsigned form. Some sources
// report hashes as signed 32-bit integers.
func NormalizeHash(h int64) uint32 {
	return uint32(h)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client calls the Bungie.net API with an API key.
type Client struct {
	// baseURL is the platform root without a trailing slash.
	baseURL string
	// apiKey is sent as X-API-Key on every request.
	apiKey string
	http   *retryablehttp.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides [DefaultBaseURL], mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRetry sets the retry budget and per-attempt timeout.
func WithRetry(retryMax int, timeout time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = retryMax
		c.http.HTTPClient.Timeout = timeout
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// NewClient creates a Bungie API client for the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 10 * time.Second
	hc.Logger = nil // suppress retryablehttp's default logging
	// Keep the final response so Bungie's error envelope can be reported.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{baseURL: DefaultBaseURL, apiKey: apiKey, http: hc}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ///////////////////////////////////////////////
// Endpoints
// ///////////////////////////////////////////////

// SearchPlayer finds memberships for name on the given platform. Names of
// the form "Guardian#1234" are searched as Bungie names; anything else uses
// the display-name search. Returns [ErrNotFound] when nothing matches.
func (c *Client) SearchPlayer(ctx context.Context, platform Platform, name string) ([]UserInfoCard, error) {
	var cards []UserInfoCard
	var err error
	if display, code, ok := splitBungieName(name); ok {
		body, _ := json.Marshal(map[string]any{
			"displayName":     display,
			"displayNameCode": code,
		})
		path := fmt.Sprintf("/Destiny2/SearchDestinyPlayerByBungieName/%d/", platform)
		err = c.do(ctx, "search player", http.MethodPost, path, body, &cards)
	} else {
		path := fmt.Sprintf("/Destiny2/SearchDestinyPlayer/%d/%s/", platform, url.PathEscape(name))
		err = c.do(ctx, "search player", http.MethodGet, path, nil, &cards)
	}
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("player %q on %s: %w", name, platform, ErrNotFound)
	}
	return cards, nil
}

// CharacterActivities returns the CharacterActivities component keyed by
// character ID. Returns [ErrNotFound] when the profile carries no character
// data, which also happens for private profiles.
func (c *Client) CharacterActivities(ctx context.Context, membershipType int, membershipID string) (map[string]CharacterActivities, error) {
	var resp struct {
		CharacterActivities struct {
			Data map[string]CharacterActivities `json:"data"`
		} `json:"characterActivities"`
	}
	path := fmt.Sprintf("/Destiny2/%d/Profile/%s/?components=CharacterActivities", membershipType, url.PathEscape(membershipID))
	if err := c.do(ctx, "get profile", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.CharacterActivities.Data) == 0 {
		return nil, fmt.Errorf("profile %s: %w", membershipID, ErrNotFound)
	}
	return resp.CharacterActivities.Data, nil
}

// ActivityDefinition resolves an activity hash through the manifest.
func (c *Client) ActivityDefinition(ctx context.Context, hash uint32) (*Definition, error) {
	return c.definition(ctx, EntityActivity, hash)
}

// ModeDefinition resolves an activity mode hash through the manifest.
func (c *Client) ModeDefinition(ctx context.Context, hash uint32) (*Definition, error) {
	return c.definition(ctx, EntityActivityMode, hash)
}

func (c *Client) definition(ctx context.Context, entity string, hash uint32) (*Definition, error) {
	var def Definition
	path := fmt.Sprintf("/Destiny2/Manifest/%s/%d/", entity, hash)
	if err := c.do(ctx, "get "+entity, http.MethodGet, path, nil, &def); err != nil {
		return nil, &DecodeError{Entity: entity, Hash: hash, Err: err}
	}
	if def.Hash == 0 {
		return nil, &DecodeError{Entity: entity, Hash: hash, Err: ErrNotFound}
	}
	return &def, nil
}

// ///////////////////////////////////////////////
// Transport
// ///////////////////////////////////////////////

// do issues a request and decodes the envelope's Response into out. A
// non-success envelope or HTTP error becomes an [*APIError].
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Op: op, HTTPStatus: resp.StatusCode}
		}
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	if env.ErrorCode != errSuccess || resp.StatusCode != http.StatusOK {
		return &APIError{
			Op:         op,
			HTTPStatus: resp.StatusCode,
			Code:       env.ErrorCode,
			Status:     env.ErrorStatus,
			Message:    env.Message,
		}
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%s: parsing Response: %w", op, err)
	}
	return nil
}

// splitBungieName splits "Name#1234" into its display name and numeric code.
func splitBungieName(name string) (string, int, bool) {
	i := strings.LastIndex(name, "#")
	if i <= 0 || i == len(name)-1 {
		return "", 0, false
	}
	code, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], code, true
}
