package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/guardiancord/internal/paths"
)

// ///////////////////////////////////////////////
// PID Lock
// ///////////////////////////////////////////////

// pidLock is the locked daemon.pid held for the daemon's lifetime. The file
// holds "PID:TOKEN"; the token proves ownership on release.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

func newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// acquirePID locks dir's PID file and records this process in it. It fails
// when another daemon holds the lock.
func acquirePID(dir paths.DataDir) (*pidLock, error) {
	f, err := os.OpenFile(dir.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}

	l := &pidLock{path: dir.PID(), token: newToken(), f: f}
	if err := f.Truncate(0); err != nil {
		l.release()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), l.token); err != nil {
		l.release()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return l, nil
}

// release unlocks and closes the file, removing it only if it still carries
// this lock's token.
func (l *pidLock) release() {
	if l.f != nil {
		_ = unlockFile(l.f)
		l.f.Close()
		l.f = nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

// runningPID reports whether another daemon holds dir's PID lock and, if so,
// its process ID (0 when unreadable). A stale unlocked file is removed.
func runningPID(dir paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dir.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}
	if lockFile(f) != nil {
		f.Close()
		data, _ := os.ReadFile(dir.PID())
		head, _, _ := strings.Cut(string(data), ":")
		pid, _ = strconv.Atoi(head)
		return true, pid
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dir.PID())
	return false, 0
}
