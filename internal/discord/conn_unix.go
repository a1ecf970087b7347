//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// Socket prefixes for the stable, Canary and PTB Discord builds.
var ipcPrefixes = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// Sandboxed installs keep their socket under an app-scoped runtime directory.
var sandboxDirs = []string{
	"snap.discord",
	"snap.discord-canary",
	"snap.discord-ptb",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"app/com.discordapp.DiscordPTB",
}

// socketPaths lists candidate IPC sockets in probe order. runtimeDir is
// XDG_RUNTIME_DIR (may be empty) and tmpDir is the temp directory fallback.
func socketPaths(runtimeDir, tmpDir, uid string) []string {
	var roots []string
	if runtimeDir != "" {
		roots = append(roots, runtimeDir)
	}
	roots = append(roots, tmpDir)

	var out []string
	for _, root := range roots {
		for _, prefix := range ipcPrefixes {
			for i := range maxIPCSlots {
				out = append(out, filepath.Join(root, fmt.Sprintf("%s-%d", prefix, i)))
			}
		}
	}

	userRun := filepath.Join("/run/user", uid)
	for _, dir := range sandboxDirs {
		for i := range maxIPCSlots {
			out = append(out, filepath.Join(userRun, dir, fmt.Sprintf("discord-ipc-%d", i)))
		}
	}
	return out
}

// connectToDiscord dials the first reachable IPC socket.
func connectToDiscord() (net.Conn, error) {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = "/tmp"
	}
	candidates := socketPaths(os.Getenv("XDG_RUNTIME_DIR"), tmp, strconv.Itoa(os.Getuid()))
	candidates = append(candidates, wslSocketPaths()...)

	for _, path := range candidates {
		if conn, err := net.Dial("unix", path); err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, bridge the Windows pipe with socat and npiperelay.exe", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}
