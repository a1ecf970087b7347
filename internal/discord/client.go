// Package discord provides a client for Discord's local IPC socket,
// enabling Rich Presence updates via the SET_ACTIVITY command.
//
// The [Client] type manages connection lifecycle, command framing, and reply
// checking. Platform-specific socket discovery is handled by conn_unix.go and
// conn_windows.go.
package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// CommandError is an ERROR reply from Discord, or the payload of a close
// frame.
type CommandError struct {
	Cmd     string
	Code    int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("discord %s failed (code %d): %s", e.Cmd, e.Code, e.Message)
}

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// DefaultReplyTimeout bounds how long a command waits for Discord's reply.
const DefaultReplyTimeout = 5 * time.Second

// Client manages a connection to Discord's IPC socket.
type Client struct {
	// appID is the Discord application (OAuth2 client) identifier.
	appID string
	// dial opens the raw IPC connection; replaced in tests.
	dial func() (net.Conn, error)
	// replyTimeout bounds each command round trip.
	replyTimeout time.Duration

	// mu protects conn and nonce.
	mu    sync.Mutex
	conn  net.Conn
	nonce uint64
}

// NewClient creates a new Discord IPC client for the given application ID.
func NewClient(appID string) *Client {
	return &Client{appID: appID, dial: connectToDiscord, replyTimeout: DefaultReplyTimeout}
}

// AppID returns the application ID the client handshakes with.
func (c *Client) AppID() string { return c.appID }

// Connect establishes a connection to Discord via IPC and sends the
// handshake. An existing connection is closed first.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

// SetActivity sends a SET_ACTIVITY command and waits for Discord to accept it.
func (c *Client) SetActivity(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActivityLocked(activity)
}

// ClearActivity removes the presence by sending a nil activity.
func (c *Client) ClearActivity() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActivityLocked(nil)
}

// Close clears the activity and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.setActivityLocked(nil)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client has a live connection. A connection
// that failed mid-command is dropped and reports false.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ///////////////////////////////////////////////
// Internals
// ///////////////////////////////////////////////

// dropLocked closes and forgets the connection. The caller must hold c.mu.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) setActivityLocked(activity *Activity) error {
	return c.command("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	})
}

// handshake sends the handshake frame and validates the READY reply. The
// caller must hold c.mu.
func (c *Client) handshake() error {
	c.conn.SetDeadline(time.Now().Add(c.replyTimeout))
	defer c.conn.SetDeadline(time.Time{})

	hello := map[string]any{"v": 1, "client_id": c.appID}
	if err := WriteJSON(c.conn, OpHandshake, hello); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	opcode, data, err := DecodeFrame(c.conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if opcode == OpClose {
		return closeError("HANDSHAKE", data)
	}
	if opcode != OpFrame {
		return fmt.Errorf("unexpected handshake response opcode: %d", opcode)
	}

	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	if msg.Evt == "ERROR" {
		return replyError("HANDSHAKE", msg.Data)
	}
	return nil
}

// command writes a command frame and reads frames until the reply carrying
// the same nonce arrives. Pings are answered along the way. Any transport
// failure drops the connection. The caller must hold c.mu.
func (c *Client) command(cmd string, args map[string]any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)

	c.conn.SetDeadline(time.Now().Add(c.replyTimeout))
	defer func() {
		if c.conn != nil {
			c.conn.SetDeadline(time.Time{})
		}
	}()

	frame := map[string]any{"cmd": cmd, "args": args, "nonce": nonce}
	if err := WriteJSON(c.conn, OpFrame, frame); err != nil {
		c.dropLocked()
		return fmt.Errorf("%s: %w", cmd, err)
	}

	for {
		opcode, data, err := DecodeFrame(c.conn)
		if err != nil {
			c.dropLocked()
			return fmt.Errorf("%s: %w", cmd, err)
		}
		switch opcode {
		case OpPing:
			if _, err := c.writeRaw(OpPong, data); err != nil {
				c.dropLocked()
				return fmt.Errorf("%s: answering ping: %w", cmd, err)
			}
			continue
		case OpClose:
			c.dropLocked()
			return closeError(cmd, data)
		case OpFrame:
		default:
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("%s: parsing reply: %w", cmd, err)
		}
		if msg.Nonce != nonce {
			continue
		}
		if msg.Evt == "ERROR" {
			return replyError(cmd, msg.Data)
		}
		return nil
	}
}

func (c *Client) writeRaw(opcode Opcode, payload []byte) (int, error) {
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		return 0, err
	}
	return c.conn.Write(frame)
}

func replyError(cmd string, data json.RawMessage) error {
	var ed errorData
	_ = json.Unmarshal(data, &ed)
	return &CommandError{Cmd: cmd, Code: ed.Code, Message: ed.Message}
}

func closeError(cmd string, data []byte) error {
	var ed errorData
	_ = json.Unmarshal(data, &ed)
	return fmt.Errorf("%w: %w", ErrNotConnected, &CommandError{Cmd: cmd, Code: ed.Code, Message: ed.Message})
}
