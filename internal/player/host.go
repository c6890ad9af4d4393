package player

import (
	"context"
	"sync"
	"time"

	"github.com/mkleene/chime/internal/bus"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/rs/zerolog"
)

// surfaceState is the host's view of its embed surface.
type surfaceState int

const (
	stateNoSurface surfaceState = iota
	stateAwaitingHandshake
	stateReady
)

// Config holds controller tunables.
type Config struct {
	RetryInterval     time.Duration // watchdog re-assertion period
	HandshakeInterval time.Duration // readiness probe period
	DefaultVolume     int           // volume re-asserted by the watchdog
}

// Controller owns exactly one embed surface at a time. It tracks the
// playback intent flag independently of the session state: while the
// intent is set, any embed-reported pause or end is treated as a stall
// and play is forcibly re-asserted.
type Controller struct {
	cfg      Config
	bus      *bus.Bus
	provider SurfaceProvider
	logger   zerolog.Logger

	runCtx context.Context

	mu          sync.Mutex
	state       surfaceState
	surface     Surface
	creating    bool
	shouldPlay  bool
	pendingID   string
	currentID   string
	lastVolume  int
	retryCancel context.CancelFunc
	probeCancel context.CancelFunc
}

// New creates a Controller. Call Attach to begin receiving commands.
func New(provider SurfaceProvider, b *bus.Bus, cfg Config, logger zerolog.Logger) *Controller {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 800 * time.Millisecond
	}
	if cfg.HandshakeInterval <= 0 {
		cfg.HandshakeInterval = 300 * time.Millisecond
	}
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = 50
	}
	return &Controller{
		cfg:        cfg,
		bus:        b,
		provider:   provider,
		logger:     logger.With().Str("component", "player-host").Logger(),
		lastVolume: cfg.DefaultVolume,
	}
}

// Attach registers the controller as the offscreen endpoint. ctx
// bounds all background tasks (surface creation, probes, watchdog).
func (h *Controller) Attach(ctx context.Context) {
	h.runCtx = ctx
	h.bus.Register(protocol.TargetOffscreen, h.Handle)
}

// Handle processes one command addressed to the playback host. It
// never blocks on surface readiness: a load arriving before the
// handshake completes is remembered and started once the embed first
// answers.
func (h *Controller) Handle(ctx context.Context, msg protocol.Message) *protocol.Reply {
	switch msg.Action {
	case protocol.ActionPlayNew:
		var track protocol.Track
		if err := msg.DecodePayload(&track); err != nil || track.VideoID == "" {
			h.stop()
			reply := protocol.OK()
			return &reply
		}
		h.load(track.VideoID)

	case protocol.ActionTogglePlay:
		// Toggle always biases toward play: the pause path is driven
		// by embed-reported phase, not by this command.
		h.mu.Lock()
		h.shouldPlay = true
		h.sendLocked(commandFrame(funcPlayVideo))
		h.mu.Unlock()

	case protocol.ActionSetVolume:
		var payload protocol.VolumePayload
		if err := msg.DecodePayload(&payload); err != nil {
			reply := protocol.Fail(err)
			return &reply
		}
		h.mu.Lock()
		h.lastVolume = payload.Volume
		h.sendLocked(commandFrame(funcSetVolume, payload.Volume))
		h.mu.Unlock()

	case protocol.ActionToggleMute:
		var payload protocol.MutePayload
		if err := msg.DecodePayload(&payload); err != nil {
			reply := protocol.Fail(err)
			return &reply
		}
		h.mu.Lock()
		if payload.Mute {
			h.sendLocked(commandFrame(funcMute))
		} else {
			h.sendLocked(commandFrame(funcUnMute))
		}
		h.mu.Unlock()

	case protocol.ActionSeek:
		var payload protocol.SeekPayload
		if err := msg.DecodePayload(&payload); err != nil {
			reply := protocol.Fail(err)
			return &reply
		}
		h.mu.Lock()
		h.sendLocked(commandFrame(funcSeekTo, payload.Time, true))
		h.mu.Unlock()

	default:
		reply := protocol.Failf("unsupported action %q", msg.Action)
		return &reply
	}

	reply := protocol.OK()
	return &reply
}

// load requests playback of videoID, creating the surface if absent.
func (h *Controller) load(videoID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shouldPlay = true

	if h.surface == nil {
		h.pendingID = videoID
		h.ensureSurfaceLocked()
		return
	}
	if h.state != stateReady {
		h.pendingID = videoID
		return
	}
	h.loadAndPlayLocked(videoID)
}

// stop is the explicit stop path: the intent flag drops and the
// watchdog is cancelled so the embed stays paused.
func (h *Controller) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shouldPlay = false
	h.pendingID = ""
	h.sendLocked(commandFrame(funcStopVideo))
	h.sendLocked(commandFrame(funcPauseVideo))
	h.stopRetryLocked()
}

// ensureSurfaceLocked kicks off surface creation unless one exists or
// creation is already in flight. Callers that raced the creation have
// their track parked in pendingID and started on readiness.
func (h *Controller) ensureSurfaceLocked() {
	if h.surface != nil || h.creating {
		return
	}
	h.creating = true
	go h.createSurface()
}

func (h *Controller) createSurface() {
	h.logger.Info().Msg("Creating playback surface")

	surface, err := h.provider.Acquire(h.runCtx)

	h.mu.Lock()
	h.creating = false
	if err != nil {
		h.mu.Unlock()
		h.logger.Error().Err(err).Msg("Surface creation failed")
		return
	}
	h.surface = surface
	h.state = stateAwaitingHandshake
	h.startProbeLocked(surface)
	h.mu.Unlock()

	go h.eventPump(surface)
}

// startProbeLocked begins the low-frequency "are you listening" probe
// that runs until the embed's first delivery.
func (h *Controller) startProbeLocked(surface Surface) {
	h.stopProbeLocked()
	ctx, cancel := context.WithCancel(h.runCtx)
	h.probeCancel = cancel

	go func() {
		ticker := time.NewTicker(h.cfg.HandshakeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := surface.Send(listeningFrame()); err != nil {
					return
				}
			}
		}
	}()
}

func (h *Controller) stopProbeLocked() {
	if h.probeCancel != nil {
		h.probeCancel()
		h.probeCancel = nil
	}
}

// loadAndPlayLocked injects the video and starts the watchdog.
func (h *Controller) loadAndPlayLocked(videoID string) {
	h.currentID = videoID
	h.logger.Info().Str("videoId", videoID).Msg("Loading video")
	h.sendLocked(commandFrame(funcLoadVideoByID, loadArgs{
		VideoID:          videoID,
		StartSeconds:     0,
		SuggestedQuality: "small",
	}))
	h.startRetryLocked()
}

// startRetryLocked (re)starts the watchdog: while the intent flag is
// up, play/unmute/volume are re-asserted every retry interval. At most
// one watchdog task runs per surface.
func (h *Controller) startRetryLocked() {
	h.stopRetryLocked()
	ctx, cancel := context.WithCancel(h.runCtx)
	h.retryCancel = cancel

	go func() {
		ticker := time.NewTicker(h.cfg.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.mu.Lock()
				if !h.shouldPlay || h.surface == nil {
					h.mu.Unlock()
					continue
				}
				volume := h.lastVolume
				h.sendLocked(commandFrame(funcPlayVideo))
				h.sendLocked(commandFrame(funcUnMute))
				h.sendLocked(commandFrame(funcSetVolume, volume))
				h.mu.Unlock()
			}
		}
	}()
}

func (h *Controller) stopRetryLocked() {
	if h.retryCancel != nil {
		h.retryCancel()
		h.retryCancel = nil
	}
}

// eventPump drains embed events until the surface disconnects.
func (h *Controller) eventPump(surface Surface) {
	for data := range surface.Events() {
		h.handleEmbedEvent(data)
	}

	h.mu.Lock()
	if h.surface == surface {
		h.logger.Warn().Msg("Surface disconnected")
		h.surface = nil
		h.state = stateNoSurface
		h.stopRetryLocked()
		h.stopProbeLocked()
	}
	h.mu.Unlock()
}

func (h *Controller) handleEmbedEvent(data []byte) {
	ev, err := parseEmbedEvent(data)
	if err != nil {
		// Non-protocol chatter from the embed; ignore.
		return
	}

	if ev.isReadiness() {
		h.handleReadiness()
		return
	}

	if ev.Event != "infoDelivery" || ev.Info == nil {
		return
	}
	info := ev.Info

	if info.Error != nil {
		// A reported error is terminal for this track: no amount of
		// re-asserted play fixes a restricted video.
		h.mu.Lock()
		h.stopRetryLocked()
		h.mu.Unlock()
		h.logger.Warn().Int("code", *info.Error).Msg("Embed reported error")
		h.notify(protocol.ActionShowError, protocol.ErrorPayload{Message: translateEmbedError(*info.Error)})
		return
	}

	if info.PlayerState != nil {
		h.handlePhaseChange(*info.PlayerState)
	}

	if info.CurrentTime != nil {
		h.notify(protocol.ActionOffscreenStateUpdate, protocol.StateUpdatePayload{
			CurrentTime: info.CurrentTime,
			Duration:    &info.Duration,
			IsMuted:     info.Muted,
		})
	}
}

func (h *Controller) handleReadiness() {
	h.mu.Lock()
	if h.state == stateReady {
		h.mu.Unlock()
		return
	}
	h.state = stateReady
	h.stopProbeLocked()
	pending := h.pendingID
	h.pendingID = ""
	h.mu.Unlock()

	h.logger.Info().Msg("Surface handshake complete")
	h.notify(protocol.ActionOffscreenReady, nil)

	if pending != "" {
		h.mu.Lock()
		h.loadAndPlayLocked(pending)
		h.mu.Unlock()
	}
}

// handlePhaseChange is the watchdog trigger: intent says play but the
// embed reports paused or ended, so play is re-asserted immediately
// and the retry task keeps prodding until a playing phase arrives.
func (h *Controller) handlePhaseChange(embedState int) {
	playing := embedState == embedStatePlaying
	paused := embedState == embedStatePaused
	ended := embedState == embedStateEnded

	h.mu.Lock()
	switch {
	case h.shouldPlay && (paused || ended):
		h.logger.Debug().Int("embedState", embedState).Msg("Stall detected, re-asserting play")
		h.startRetryLocked()
		h.sendLocked(commandFrame(funcPlayVideo))
	case playing:
		h.stopRetryLocked()
	}
	// Buffering neither starts nor stops the watchdog.
	h.mu.Unlock()

	phase := protocol.PhasePaused
	if playing {
		phase = protocol.PhasePlaying
	}
	h.notify(protocol.ActionOffscreenStateUpdate, protocol.StateUpdatePayload{
		Phase: phase,
		Ended: ended,
	})
}

// sendLocked writes a frame to the surface, tolerating its absence.
func (h *Controller) sendLocked(frame []byte) {
	if h.surface == nil {
		return
	}
	if err := h.surface.Send(frame); err != nil {
		h.logger.Debug().Err(err).Msg("Surface write failed")
	}
}

// notify reports an event upward to the coordinator.
func (h *Controller) notify(action protocol.Action, payload any) {
	msg, err := protocol.NewMessage(protocol.TargetBackground, action, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("action", string(action)).Msg("Failed to build event")
		return
	}
	if d := h.bus.Send(h.runCtx, msg); d.State == bus.Undelivered {
		h.logger.Debug().Str("action", string(action)).Str("reason", d.Reason).Msg("Event undeliverable")
	}
}
