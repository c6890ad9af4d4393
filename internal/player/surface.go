package player

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Surface is one embed playback surface. Frames are raw wire-protocol
// payloads; the Events channel closes when the surface goes away.
type Surface interface {
	Send(frame []byte) error
	Events() <-chan []byte
	Close() error
}

// SurfaceProvider hands out surfaces on demand. Acquire blocks until a
// surface is available or ctx is cancelled.
type SurfaceProvider interface {
	Acquire(ctx context.Context) (Surface, error)
}

// wsSurface is a Surface over one WebSocket connection from the embed
// host page.
type wsSurface struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan []byte
	once    sync.Once
}

func newWSSurface(conn *websocket.Conn) *wsSurface {
	s := &wsSurface{
		conn:   conn,
		events: make(chan []byte, 32),
	}
	go s.readPump()
	return s
}

func (s *wsSurface) readPump() {
	defer s.once.Do(func() { close(s.events) })
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.events <- data:
		default:
			// Event pump stalled; drop rather than block the socket.
		}
	}
}

func (s *wsSurface) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *wsSurface) Events() <-chan []byte {
	return s.events
}

func (s *wsSurface) Close() error {
	return s.conn.Close()
}
