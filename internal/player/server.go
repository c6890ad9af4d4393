package player

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SurfaceServer serves the embed host page and accepts its WebSocket
// connection. It is the production SurfaceProvider: creating a surface
// means waiting for the hidden page to dial in.
type SurfaceServer struct {
	addr     string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	srv      *http.Server
	pending  chan Surface
}

// NewSurfaceServer creates a server bound to addr (e.g.
// "127.0.0.1:9888").
func NewSurfaceServer(addr string, logger zerolog.Logger) *SurfaceServer {
	s := &SurfaceServer{
		addr:    addr,
		logger:  logger.With().Str("component", "surface-server").Logger(),
		pending: make(chan Surface, 1),
		upgrader: websocket.Upgrader{
			// The host page is served by us on loopback.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Start listens and serves until ctx is cancelled.
func (s *SurfaceServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen surface server: %w", err)
	}
	s.logger.Info().Str("addr", s.addr).Msg("Surface server listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Acquire waits for the next surface connection.
func (s *SurfaceServer) Acquire(ctx context.Context) (Surface, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case surface := <-s.pending:
		return surface, nil
	}
}

func (s *SurfaceServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Surface upgrade failed")
		return
	}

	surface := newWSSurface(conn)
	select {
	case s.pending <- surface:
		s.logger.Info().Str("remote", r.RemoteAddr).Msg("Surface connected")
	default:
		// A surface is already waiting; only one is ever used.
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Surface slot occupied, rejecting")
		surface.Close()
	}
}

func (s *SurfaceServer) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(surfacePage))
}

// surfacePage bridges our WebSocket frames to the embed iframe's
// postMessage protocol in both directions. It has no visible UI.
const surfacePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>chime surface</title></head>
<body style="margin:0;background:#000">
<div id="player-container" style="width:100%;height:100vh"></div>
<script>
(function () {
  var container = document.getElementById('player-container');
  var params = new URLSearchParams({
    autoplay: 1, controls: 0, enablejsapi: 1, playsinline: 1,
    rel: 0, fs: 0, disablekb: 1
  });
  var iframe = document.createElement('iframe');
  iframe.src = 'https://www.youtube.com/embed/?' + params.toString();
  iframe.allow = 'autoplay; encrypted-media';
  iframe.style.width = '100%';
  iframe.style.height = '100%';
  iframe.style.border = '0';
  container.appendChild(iframe);

  var ws = new WebSocket('ws://' + location.host + '/ws');
  ws.onmessage = function (e) {
    if (iframe.contentWindow) iframe.contentWindow.postMessage(e.data, '*');
  };
  window.addEventListener('message', function (e) {
    if (typeof e.data !== 'string') return;
    if (ws.readyState === WebSocket.OPEN) ws.send(e.data);
  });
})();
</script>
</body>
</html>
`
