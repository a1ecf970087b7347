//go:build windows

package discord

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const pipeDialTimeout = 2 * time.Second

// connectToDiscord dials the first reachable named pipe slot.
func connectToDiscord() (net.Conn, error) {
	timeout := pipeDialTimeout
	for i := range maxIPCSlots {
		conn, err := winio.DialPipe(fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i), &timeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
