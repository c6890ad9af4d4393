package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mkleene/chime/internal/bus"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/mkleene/chime/internal/store"
	"github.com/rs/zerolog"
)

// ErrInvalidPayload is returned verbatim to panels that send a command
// without its required fields.
var ErrInvalidPayload = errors.New("Invalid payload")

// Repository is the slice of the persistent store the coordinator
// uses. Reads fall back to the given default; writes may fail and the
// failure is reported to the command's caller.
type Repository interface {
	GetTracks(ctx context.Context, key string, def []protocol.Track) []protocol.Track
	SetTracks(ctx context.Context, key string, tracks []protocol.Track) error
	GetInt(ctx context.Context, key string, def int) int
	SetInt(ctx context.Context, key string, v int) error
	GetString(ctx context.Context, key string, def string) string
	SetString(ctx context.Context, key string, v string) error
	GetBool(ctx context.Context, key string, def bool) bool
	SetBool(ctx context.Context, key string, v bool) error
}

// Config holds coordinator tunables.
type Config struct {
	DefaultVolume int // initial volume when nothing is persisted
	HistoryLimit  int // max retained history entries
}

// Coordinator owns the session state and is the single entry point for
// every playback-affecting command. Commands are serialized: each one
// completes its persistence and downstream sends before the next
// mutates state.
type Coordinator struct {
	cfg    Config
	repo   Repository
	bus    *bus.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	rng   *rand.Rand
}

// New creates a Coordinator. Call Attach to begin receiving commands.
func New(repo Repository, b *bus.Bus, cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = 50
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Coordinator{
		cfg:    cfg,
		repo:   repo,
		bus:    b,
		logger: logger.With().Str("component", "coordinator").Logger(),
		state:  NewState(cfg.DefaultVolume),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attach registers the coordinator as the background endpoint.
func (c *Coordinator) Attach() {
	c.bus.Register(protocol.TargetBackground, c.Handle)
}

// Handle processes one inbound command. Every command gets exactly one
// reply, including on the error path; a failure after some mutations
// have been persisted leaves those mutations committed.
func (c *Coordinator) Handle(ctx context.Context, msg protocol.Message) (reply *protocol.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("action", string(msg.Action)).
				Msg("Command handler panicked")
			f := protocol.Failf("internal error: %v", r)
			reply = &f
		}
	}()

	// Re-read persisted fields before acting so a restart (or a stale
	// in-memory copy) cannot serve commands from drifted state.
	c.hydrate(ctx)

	r, err := c.handle(ctx, msg)
	if err != nil {
		c.logger.Error().Err(err).Str("action", string(msg.Action)).Msg("Command failed")
		f := protocol.Fail(err)
		return &f
	}
	return &r
}

// hydrate restores queue/index/settings from the store. Transient
// playback fields (IsPlaying, CurrentTime, Duration) are left alone:
// they restart as not-playing and are only ever host-reported.
func (c *Coordinator) hydrate(ctx context.Context) {
	s := &c.state
	s.Queue = c.repo.GetTracks(ctx, store.KeyQueue, s.Queue)
	s.CurrentIndex = c.repo.GetInt(ctx, store.KeyCurrentIndex, s.CurrentIndex)
	s.Volume = c.repo.GetInt(ctx, store.KeyVolume, s.Volume)
	s.RepeatMode = protocol.RepeatMode(c.repo.GetString(ctx, store.KeyRepeatMode, string(s.RepeatMode)))
	s.IsShuffle = c.repo.GetBool(ctx, store.KeyShuffle, s.IsShuffle)
	s.IsMuted = c.repo.GetBool(ctx, store.KeyMuted, s.IsMuted)
	s.ClampIndex()
}

func (c *Coordinator) handle(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	switch msg.Action {
	case protocol.ActionShowError:
		// Host-reported failure: fan out to panels unchanged.
		c.forward(ctx, protocol.TargetPopup, msg)
		return protocol.OK(), nil

	case protocol.ActionOffscreenReady:
		return c.handleOffscreenReady(ctx)

	case protocol.ActionPlayNew:
		return c.handlePlayNew(ctx, msg)

	case protocol.ActionAddToQueue:
		return c.handleAddToQueue(ctx, msg)

	case protocol.ActionRemoveFromQueue:
		return c.handleRemoveFromQueue(ctx, msg)

	case protocol.ActionClearQueue:
		return c.handleClearQueue(ctx)

	case protocol.ActionTogglePlay:
		// Stateless toggle: the host decides, and the resulting phase
		// comes back asynchronously as a state update.
		c.sendToHost(ctx, protocol.ActionTogglePlay, nil)
		return protocol.OK(), nil

	case protocol.ActionNextTrack:
		return c.handleAdvance(ctx, true)

	case protocol.ActionPrevTrack:
		return c.handleAdvance(ctx, false)

	case protocol.ActionSeek:
		// Seeking never touches session state; pass it through.
		c.forward(ctx, protocol.TargetOffscreen, msg)
		return protocol.OK(), nil

	case protocol.ActionToggleShuffle:
		c.state.IsShuffle = !c.state.IsShuffle
		if err := c.repo.SetBool(ctx, store.KeyShuffle, c.state.IsShuffle); err != nil {
			return protocol.Reply{}, err
		}
		c.broadcast(ctx)
		return protocol.OK(), nil

	case protocol.ActionToggleRepeat:
		c.state.RepeatMode = c.state.RepeatMode.Next()
		if err := c.repo.SetString(ctx, store.KeyRepeatMode, string(c.state.RepeatMode)); err != nil {
			return protocol.Reply{}, err
		}
		c.broadcast(ctx)
		return protocol.OK(), nil

	case protocol.ActionToggleMute:
		c.state.IsMuted = !c.state.IsMuted
		if err := c.repo.SetBool(ctx, store.KeyMuted, c.state.IsMuted); err != nil {
			return protocol.Reply{}, err
		}
		c.sendToHost(ctx, protocol.ActionToggleMute, protocol.MutePayload{Mute: c.state.IsMuted})
		c.broadcast(ctx)
		return protocol.OK(), nil

	case protocol.ActionSetVolume:
		return c.handleSetVolume(ctx, msg)

	case protocol.ActionOffscreenStateUpdate:
		return c.handleStateUpdate(ctx, msg)

	case protocol.ActionGetCurrentState:
		c.broadcast(ctx)
		snap := c.state.Snapshot()
		return protocol.Reply{Success: true, State: &snap}, nil

	default:
		return protocol.Reply{}, fmt.Errorf("unsupported action %q", msg.Action)
	}
}

func (c *Coordinator) handleOffscreenReady(ctx context.Context) (protocol.Reply, error) {
	// The host surface may have been recreated with default volume and
	// mute; push the persisted settings back down.
	c.sendToHost(ctx, protocol.ActionSetVolume, protocol.VolumePayload{Volume: c.state.Volume})
	if c.state.IsMuted {
		c.sendToHost(ctx, protocol.ActionToggleMute, protocol.MutePayload{Mute: true})
	}
	return protocol.OK(), nil
}

func (c *Coordinator) handlePlayNew(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	var track protocol.Track
	if err := msg.DecodePayload(&track); err != nil || track.VideoID == "" {
		return protocol.Reply{}, ErrInvalidPayload
	}

	if existing := c.state.IndexOf(track.VideoID); existing != -1 {
		c.state.CurrentIndex = existing
	} else {
		c.state.Queue = append(c.state.Queue, track)
		c.state.CurrentIndex = len(c.state.Queue) - 1
		if err := c.repo.SetTracks(ctx, store.KeyQueue, c.state.Queue); err != nil {
			return protocol.Reply{}, err
		}
	}

	if err := c.repo.SetInt(ctx, store.KeyCurrentIndex, c.state.CurrentIndex); err != nil {
		return protocol.Reply{}, err
	}

	c.recordHistory(ctx, track)
	c.playCurrent(ctx)
	c.broadcast(ctx)
	return protocol.Reply{Success: true, Played: true}, nil
}

func (c *Coordinator) handleAddToQueue(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	var track protocol.Track
	if err := msg.DecodePayload(&track); err != nil || track.VideoID == "" {
		return protocol.Reply{}, ErrInvalidPayload
	}

	if !c.state.Add(track) {
		return protocol.Reply{Success: true, Added: false, Reason: "duplicate"}, nil
	}

	if err := c.repo.SetTracks(ctx, store.KeyQueue, c.state.Queue); err != nil {
		return protocol.Reply{}, err
	}
	c.broadcast(ctx)
	return protocol.Reply{Success: true, Added: true}, nil
}

func (c *Coordinator) handleRemoveFromQueue(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	var payload protocol.RemovePayload
	if err := msg.DecodePayload(&payload); err != nil || payload.Index == nil {
		return protocol.Reply{}, ErrInvalidPayload
	}

	removed, emptied, ok := c.state.Remove(*payload.Index)
	if !ok {
		return protocol.Reply{}, fmt.Errorf("index %d out of range", *payload.Index)
	}
	if emptied {
		c.stopHost(ctx)
	}

	if err := c.repo.SetTracks(ctx, store.KeyQueue, c.state.Queue); err != nil {
		return protocol.Reply{}, err
	}
	if err := c.repo.SetInt(ctx, store.KeyCurrentIndex, c.state.CurrentIndex); err != nil {
		return protocol.Reply{}, err
	}

	c.logger.Debug().Str("videoId", removed.VideoID).Msg("Removed from queue")
	c.broadcast(ctx)
	return protocol.OK(), nil
}

func (c *Coordinator) handleClearQueue(ctx context.Context) (protocol.Reply, error) {
	c.state.Clear()
	if err := c.repo.SetTracks(ctx, store.KeyQueue, c.state.Queue); err != nil {
		return protocol.Reply{}, err
	}
	if err := c.repo.SetInt(ctx, store.KeyCurrentIndex, -1); err != nil {
		return protocol.Reply{}, err
	}
	c.stopHost(ctx)
	c.broadcast(ctx)
	return protocol.OK(), nil
}

func (c *Coordinator) handleAdvance(ctx context.Context, forward bool) (protocol.Reply, error) {
	var moved bool
	if forward {
		moved = c.state.Advance(c.rng)
	} else {
		moved = c.state.Retreat()
	}
	if !moved {
		return protocol.OK(), nil
	}

	if err := c.repo.SetInt(ctx, store.KeyCurrentIndex, c.state.CurrentIndex); err != nil {
		return protocol.Reply{}, err
	}
	c.playCurrent(ctx)
	c.broadcast(ctx)
	return protocol.OK(), nil
}

func (c *Coordinator) handleSetVolume(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	var payload protocol.VolumePayload
	if err := msg.DecodePayload(&payload); err != nil {
		return protocol.Reply{}, ErrInvalidPayload
	}

	v := payload.Volume
	if v < 0 {
		v = 0
	} else if v > 100 {
		v = 100
	}
	c.state.Volume = v

	if err := c.repo.SetInt(ctx, store.KeyVolume, v); err != nil {
		return protocol.Reply{}, err
	}
	c.sendToHost(ctx, protocol.ActionSetVolume, protocol.VolumePayload{Volume: v})
	c.broadcast(ctx)
	return protocol.OK(), nil
}

// handleStateUpdate merges a host-reported partial update into the
// session state. Queue, selection and persisted settings are never
// touched here; each reported field simply wins over the in-memory
// value at arrival time.
func (c *Coordinator) handleStateUpdate(ctx context.Context, msg protocol.Message) (protocol.Reply, error) {
	var update protocol.StateUpdatePayload
	if err := msg.DecodePayload(&update); err != nil {
		return protocol.Reply{}, ErrInvalidPayload
	}

	if update.Phase != "" {
		c.state.IsPlaying = update.Phase == protocol.PhasePlaying
	}
	if update.CurrentTime != nil {
		c.state.CurrentTime = *update.CurrentTime
	}
	if update.Duration != nil {
		c.state.Duration = *update.Duration
	}
	if update.IsMuted != nil {
		c.state.IsMuted = *update.IsMuted
	}

	if update.Ended {
		c.completeTrack(ctx)
	}

	c.broadcast(ctx)
	return protocol.OK(), nil
}

// completeTrack applies the completion policy when the host reports
// the current track finished.
func (c *Coordinator) completeTrack(ctx context.Context) {
	switch c.state.CompletionDecision() {
	case CompletionReplay:
		c.playCurrent(ctx)
	case CompletionAdvance:
		if c.state.Advance(c.rng) {
			if err := c.repo.SetInt(ctx, store.KeyCurrentIndex, c.state.CurrentIndex); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to persist index after auto-advance")
			}
			c.playCurrent(ctx)
		}
	case CompletionStop:
		c.state.IsPlaying = false
	}
}

// playCurrent sends the selected track to the playback host and marks
// the session as playing.
func (c *Coordinator) playCurrent(ctx context.Context) {
	track := c.state.CurrentTrack()
	if track == nil {
		return
	}
	c.logger.Info().
		Str("videoId", track.VideoID).
		Str("title", track.Title).
		Msg("Starting playback")
	c.sendToHost(ctx, protocol.ActionPlayNew, *track)
	c.state.IsPlaying = true
}

// stopHost tells the host to drop its playback intent. An empty track
// id is the stop signal.
func (c *Coordinator) stopHost(ctx context.Context) {
	c.sendToHost(ctx, protocol.ActionPlayNew, protocol.Track{})
}

// recordHistory pushes track to the front of the play history, capped.
// History loss is never fatal to the command.
func (c *Coordinator) recordHistory(ctx context.Context, track protocol.Track) {
	prev := c.repo.GetTracks(ctx, store.KeyHistory, nil)
	history := make([]protocol.Track, 0, len(prev)+1)
	history = append(history, track)
	for _, t := range prev {
		if t.VideoID != track.VideoID {
			history = append(history, t)
		}
	}
	if len(history) > c.cfg.HistoryLimit {
		history = history[:c.cfg.HistoryLimit]
	}
	if err := c.repo.SetTracks(ctx, store.KeyHistory, history); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist history")
	}
}

// broadcast pushes the canonical state to all panels.
func (c *Coordinator) broadcast(ctx context.Context) {
	msg, err := protocol.NewMessage(protocol.TargetPopup, protocol.ActionSyncUI, c.state.Snapshot())
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build sync message")
		return
	}
	c.forward(ctx, protocol.TargetPopup, msg)
}

// sendToHost fires a command at the playback host, tolerating its
// absence.
func (c *Coordinator) sendToHost(ctx context.Context, action protocol.Action, payload any) {
	msg, err := protocol.NewMessage(protocol.TargetOffscreen, action, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("action", string(action)).Msg("Failed to build host message")
		return
	}
	c.forward(ctx, protocol.TargetOffscreen, msg)
}

// forward delivers msg (retargeted at target), logging soft failures.
func (c *Coordinator) forward(ctx context.Context, target protocol.Target, msg protocol.Message) {
	msg.Target = target
	if d := c.bus.Send(ctx, msg); d.State == bus.Undelivered {
		c.logger.Debug().
			Str("target", string(target)).
			Str("action", string(msg.Action)).
			Str("reason", d.Reason).
			Msg("Message undeliverable")
	}
}
