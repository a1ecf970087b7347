//go:build linux

// Under WSL2 Discord runs on the Windows host and its named pipe is not
// visible as a Unix socket. A relay bridges it:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"

package discord

import (
	"fmt"
	"os"
	"strings"
)

// isWSL reports whether the kernel identifies itself as a Microsoft build.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// wslSocketPaths returns the fixed /tmp locations a relay would bind, which
// are probed even when TMPDIR points elsewhere.
func wslSocketPaths() []string {
	if !isWSL() {
		return nil
	}
	out := make([]string, 0, maxIPCSlots)
	for i := range maxIPCSlots {
		out = append(out, fmt.Sprintf("/tmp/discord-ipc-%d", i))
	}
	return out
}
