package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// PanelServer exposes the bus to external panel processes over a unix
// socket. Each connection may submit commands and receives every
// popup-targeted broadcast for as long as it stays open.
type PanelServer struct {
	bus      *Bus
	path     string
	listener net.Listener
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewPanelServer listens on socketPath, replacing any stale socket
// left behind by a previous run.
func NewPanelServer(b *Bus, socketPath string, logger zerolog.Logger) (*PanelServer, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on panel socket: %w", err)
	}

	return &PanelServer{
		bus:      b,
		path:     socketPath,
		listener: listener,
		logger:   logger.With().Str("component", "panel-server").Logger(),
	}, nil
}

// Serve accepts panel connections until ctx is cancelled.
func (s *PanelServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info().Str("socket", s.path).Msg("Panel socket listening")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn().Err(err).Msg("Accept failed")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close shuts the listener and removes the socket file.
func (s *PanelServer) Close() error {
	err := s.listener.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func (s *PanelServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Handshake first: panels announce themselves before commands.
	opcode, _, err := readFrame(conn)
	if err != nil || opcode != opHandshake {
		s.logger.Debug().Err(err).Msg("Panel handshake failed")
		return
	}
	ack, _ := json.Marshal(map[string]any{"v": 1})
	if err := writeFrame(conn, opHandshake, ack); err != nil {
		return
	}

	// Writes interleave replies with broadcast events.
	var writeMu sync.Mutex

	subID, events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(subID)

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				writeMu.Lock()
				err := writeEnvelope(conn, envelope{Event: &msg})
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		opcode, payload, err := readFrame(conn)
		if err != nil {
			return
		}

		switch opcode {
		case opClose:
			return
		case opFrame:
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil || env.Command == nil {
				s.logger.Debug().Err(err).Msg("Malformed panel frame")
				continue
			}

			reply := s.bus.Send(ctx, *env.Command).AsReply()
			writeMu.Lock()
			err := writeEnvelope(conn, envelope{Reply: &reply})
			writeMu.Unlock()
			if err != nil {
				return
			}
		default:
			s.logger.Debug().Uint32("opcode", opcode).Msg("Unknown panel opcode")
		}
	}
}
