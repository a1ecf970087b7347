//go:build !windows

// Package integration runs the daemon pipeline end to end: a fake Bungie API
// over HTTP and a fake Discord client listening on a real IPC socket.
package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/guardiancord/internal/bungie"
	"tools.zach/dev/guardiancord/internal/discord"
	"tools.zach/dev/guardiancord/internal/paths"
	"tools.zach/dev/guardiancord/internal/poller"
	"tools.zach/dev/guardiancord/internal/presence"
)

// ///////////////////////////////////////////////
// Fake Bungie API
// ///////////////////////////////////////////////

func envelope(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"Response":    response,
		"ErrorCode":   1,
		"ErrorStatus": "Success",
		"Message":     "Ok",
	})
}

func fakeBungie(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Destiny2/SearchDestinyPlayer/3/{name}/", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []map[string]any{{"membershipType": 3, "membershipId": "4611686018400000001", "displayName": r.PathValue("name")}})
	})
	mux.HandleFunc("GET /Destiny2/3/Profile/4611686018400000001/", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{
			"characterActivities": map[string]any{
				"data": map[string]any{
					"2305843009300000001": map[string]any{
						"dateActivityStarted":     "2019-10-01T18:00:00Z",
						"currentActivityHash":     100,
						"currentActivityModeHash": 200,
					},
				},
			},
		})
	})
	mux.HandleFunc("GET /Destiny2/Manifest/DestinyActivityDefinition/100/", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"hash": 100, "displayProperties": map[string]any{"name": "Landing Zone"}})
	})
	mux.HandleFunc("GET /Destiny2/Manifest/DestinyActivityModeDefinition/200/", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"hash": 200, "displayProperties": map[string]any{"name": "Explore"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ///////////////////////////////////////////////
// Fake Discord
// ///////////////////////////////////////////////

type setActivity struct {
	Cmd  string `json:"cmd"`
	Args struct {
		PID      int               `json:"pid"`
		Activity *discord.Activity `json:"activity"`
	} `json:"args"`
	Nonce string `json:"nonce"`
}

// fakeDiscord listens on dir/discord-ipc-0 and sends every command it
// receives on the returned channel.
func fakeDiscord(t *testing.T, dir string) <-chan setActivity {
	t.Helper()
	ln, err := net.Listen("unix", filepath.Join(dir, "discord-ipc-0"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cmds := make(chan setActivity, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if op, _, err := discord.DecodeFrame(conn); err != nil || op != discord.OpHandshake {
			return
		}
		if err := discord.WriteJSON(conn, discord.OpFrame, map[string]any{"cmd": "DISPATCH", "evt": "READY"}); err != nil {
			return
		}
		for {
			_, data, err := discord.DecodeFrame(conn)
			if err != nil {
				return
			}
			var cmd setActivity
			if err := json.Unmarshal(data, &cmd); err != nil {
				return
			}
			if err := discord.WriteJSON(conn, discord.OpFrame, map[string]any{"cmd": cmd.Cmd, "nonce": cmd.Nonce}); err != nil {
				return
			}
			select {
			case cmds <- cmd:
			default:
			}
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	return cmds
}

func next(t *testing.T, cmds <-chan setActivity) setActivity {
	t.Helper()
	select {
	case c := <-cmds:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SET_ACTIVITY")
		return setActivity{}
	}
}

// ///////////////////////////////////////////////
// Pipeline
// ///////////////////////////////////////////////

func TestPipeline_PublishesClassifiedActivity(t *testing.T) {
	// Unix socket paths are length limited; t.TempDir can be too deep.
	sockDir, err := os.MkdirTemp("", "gc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(sockDir) })
	t.Setenv("XDG_RUNTIME_DIR", sockDir)
	t.Setenv("TMPDIR", sockDir)

	cmds := fakeDiscord(t, sockDir)
	srv := fakeBungie(t)
	dataDir := t.TempDir()

	dc := discord.NewClient("123")
	if err := dc.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer dc.Close()

	api := bungie.NewClient("key", bungie.WithBaseURL(srv.URL), bungie.WithRetry(0, 2*time.Second))
	pub := presence.NewPublisher(dc, presence.DefaultOptions())
	p := poller.New(bungie.NewFetcher(api, dataDir), pub,
		poller.Options{FetchDelay: time.Millisecond, PublishDelay: time.Millisecond},
		bungie.Player{Name: "Cayde", Platform: bungie.PlatformSteam})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	idle := next(t, cmds)
	if idle.Cmd != "SET_ACTIVITY" || idle.Args.PID != os.Getpid() {
		t.Errorf("first command = %+v", idle)
	}
	if a := idle.Args.Activity; a == nil || a.State != presence.DefaultIdleState {
		t.Errorf("first activity = %+v, want idle", a)
	}

	got := next(t, cmds).Args.Activity
	cancel()
	<-errc

	if got == nil {
		t.Fatal("second activity is nil")
	}
	if got.Details != "Exploring:" || got.State != "Mercury: Fields of Glass" {
		t.Errorf("activity = %q / %q, want Exploring: / Mercury: Fields of Glass", got.Details, got.State)
	}
	if got.Assets == nil || got.Assets.LargeImage != "exploring" {
		t.Errorf("assets = %+v, want exploring image", got.Assets)
	}
	want := time.Date(2019, 10, 1, 18, 0, 0, 0, time.UTC).Unix()
	if got.Timestamps == nil || got.Timestamps.Start != want {
		t.Errorf("timestamps = %+v, want start %d", got.Timestamps, want)
	}

	if _, err := os.Stat(filepath.Join(dataDir, paths.MembershipCacheFile)); err != nil {
		t.Errorf("membership cache not written: %v", err)
	}
}
