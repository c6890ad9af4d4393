package bus

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/mkleene/chime/internal/protocol"
)

// Client is a panel-side connection to the daemon's panel socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the panel socket and completes the handshake.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial panel socket (is the daemon running?): %w", err)
	}
	c := &Client{conn: conn}

	hello, _ := json.Marshal(map[string]any{"v": 1})
	if err := writeFrame(conn, opHandshake, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	if opcode, _, err := readFrame(conn); err != nil || opcode != opHandshake {
		conn.Close()
		return nil, fmt.Errorf("handshake read: %w", err)
	}
	return c, nil
}

// Send submits one command and waits for its reply, skipping any
// broadcast events that arrive in between.
func (c *Client) Send(msg protocol.Message) (protocol.Reply, error) {
	deadline := time.Now().Add(10 * time.Second)
	_ = c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := writeEnvelope(c.conn, envelope{Command: &msg}); err != nil {
		return protocol.Reply{}, fmt.Errorf("send command: %w", err)
	}

	for {
		opcode, payload, err := readFrame(c.conn)
		if err != nil {
			return protocol.Reply{}, fmt.Errorf("read reply: %w", err)
		}
		if opcode != opFrame {
			continue
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return protocol.Reply{}, fmt.Errorf("decode reply: %w", err)
		}
		if env.Reply != nil {
			return *env.Reply, nil
		}
		// Broadcast event, not our reply; keep reading.
	}
}

// NextEvent blocks until the daemon broadcasts the next popup-targeted
// message. Used by panels that stay attached to observe state.
func (c *Client) NextEvent() (protocol.Message, error) {
	for {
		opcode, payload, err := readFrame(c.conn)
		if err != nil {
			return protocol.Message{}, err
		}
		if opcode != opFrame {
			continue
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return protocol.Message{}, fmt.Errorf("decode event: %w", err)
		}
		if env.Event != nil {
			return *env.Event, nil
		}
	}
}

// Close signals the daemon and closes the connection.
func (c *Client) Close() error {
	_ = writeFrame(c.conn, opClose, []byte("{}"))
	return c.conn.Close()
}
