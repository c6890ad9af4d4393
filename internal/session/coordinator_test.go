package session

import (
	"context"
	"sync"
	"testing"

	"github.com/mkleene/chime/internal/bus"
	"github.com/mkleene/chime/internal/protocol"
	"github.com/mkleene/chime/internal/store"
	"github.com/rs/zerolog"
)

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	mu     sync.Mutex
	tracks map[string][]protocol.Track
	ints   map[string]int
	strs   map[string]string
	bools  map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tracks: map[string][]protocol.Track{},
		ints:   map[string]int{},
		strs:   map[string]string{},
		bools:  map[string]bool{},
	}
}

func (r *fakeRepo) GetTracks(_ context.Context, key string, def []protocol.Track) []protocol.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.tracks[key]
	if !ok {
		return def
	}
	out := make([]protocol.Track, len(v))
	copy(out, v)
	return out
}

func (r *fakeRepo) SetTracks(_ context.Context, key string, tracks []protocol.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := make([]protocol.Track, len(tracks))
	copy(v, tracks)
	r.tracks[key] = v
	return nil
}

func (r *fakeRepo) GetInt(_ context.Context, key string, def int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.ints[key]; ok {
		return v
	}
	return def
}

func (r *fakeRepo) SetInt(_ context.Context, key string, v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ints[key] = v
	return nil
}

func (r *fakeRepo) GetString(_ context.Context, key string, def string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.strs[key]; ok {
		return v
	}
	return def
}

func (r *fakeRepo) SetString(_ context.Context, key string, v string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strs[key] = v
	return nil
}

func (r *fakeRepo) GetBool(_ context.Context, key string, def bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.bools[key]; ok {
		return v
	}
	return def
}

func (r *fakeRepo) SetBool(_ context.Context, key string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bools[key] = v
	return nil
}

// hostRecorder captures commands forwarded to the playback host.
type hostRecorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (h *hostRecorder) handle(_ context.Context, msg protocol.Message) *protocol.Reply {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	r := protocol.OK()
	return &r
}

func (h *hostRecorder) actions() []protocol.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Action, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Action
	}
	return out
}

func (h *hostRecorder) last() *protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.msgs) == 0 {
		return nil
	}
	m := h.msgs[len(h.msgs)-1]
	return &m
}

func (h *hostRecorder) lastOf(action protocol.Action) *protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.msgs) - 1; i >= 0; i-- {
		if h.msgs[i].Action == action {
			m := h.msgs[i]
			return &m
		}
	}
	return nil
}

func newTestCoordinator(t *testing.T, repo Repository) (*Coordinator, *hostRecorder) {
	t.Helper()
	b := bus.New(zerolog.Nop())
	host := &hostRecorder{}
	b.Register(protocol.TargetOffscreen, host.handle)

	c := New(repo, b, Config{DefaultVolume: 50, HistoryLimit: 3}, zerolog.Nop())
	c.Attach()
	return c, host
}

func command(t *testing.T, action protocol.Action, payload any) protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(protocol.TargetBackground, action, payload)
	if err != nil {
		t.Fatalf("NewMessage(%s) error = %v", action, err)
	}
	return msg
}

func send(t *testing.T, c *Coordinator, action protocol.Action, payload any) protocol.Reply {
	t.Helper()
	reply := c.Handle(context.Background(), command(t, action, payload))
	if reply == nil {
		t.Fatalf("Handle(%s) returned nil reply", action)
	}
	return *reply
}

func TestCoordinatorPlayNew(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	reply := send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	if !reply.Success || !reply.Played {
		t.Fatalf("reply = %+v, want success and played", reply)
	}

	// The host must get the track, and the queue must be persisted.
	loaded := host.lastOf(protocol.ActionPlayNew)
	if loaded == nil {
		t.Fatal("host never received PLAY_NEW")
	}
	var sent protocol.Track
	if err := loaded.DecodePayload(&sent); err != nil || sent.VideoID != "aaaaaaaaaaa" {
		t.Fatalf("host received track %+v, err %v", sent, err)
	}

	persisted := repo.GetTracks(context.Background(), store.KeyQueue, nil)
	if len(persisted) != 1 {
		t.Fatalf("persisted queue length = %d, want 1", len(persisted))
	}
	if got := repo.GetInt(context.Background(), store.KeyCurrentIndex, -99); got != 0 {
		t.Errorf("persisted index = %d, want 0", got)
	}
}

func TestCoordinatorPlayNewDuplicateSelects(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	send(t, c, protocol.ActionPlayNew, track("bbbbbbbbbbb"))

	// Replaying the first track selects it instead of re-adding.
	reply := send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	if !reply.Played {
		t.Fatalf("reply = %+v, want played", reply)
	}

	persisted := repo.GetTracks(context.Background(), store.KeyQueue, nil)
	if len(persisted) != 2 {
		t.Errorf("queue length = %d after duplicate play, want 2", len(persisted))
	}
	if got := repo.GetInt(context.Background(), store.KeyCurrentIndex, -99); got != 0 {
		t.Errorf("persisted index = %d, want 0", got)
	}
}

func TestCoordinatorPlayNewInvalidPayload(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	reply := send(t, c, protocol.ActionPlayNew, protocol.Track{})
	if reply.Success {
		t.Fatal("reply.Success = true for empty video id, want false")
	}
	if reply.Error != ErrInvalidPayload.Error() {
		t.Errorf("reply.Error = %q, want %q", reply.Error, ErrInvalidPayload.Error())
	}
}

func TestCoordinatorAddToQueueDuplicate(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	reply := send(t, c, protocol.ActionAddToQueue, track("aaaaaaaaaaa"))
	if !reply.Success || !reply.Added {
		t.Fatalf("reply = %+v, want added", reply)
	}

	// A duplicate add succeeds softly and changes nothing.
	reply = send(t, c, protocol.ActionAddToQueue, track("aaaaaaaaaaa"))
	if !reply.Success {
		t.Fatalf("reply = %+v, want soft success", reply)
	}
	if reply.Added || reply.Reason != "duplicate" {
		t.Errorf("reply = %+v, want added=false reason=duplicate", reply)
	}

	persisted := repo.GetTracks(context.Background(), store.KeyQueue, nil)
	if len(persisted) != 1 {
		t.Errorf("queue length = %d, want 1", len(persisted))
	}
}

func TestCoordinatorAddToQueueDoesNotInterrupt(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	before := len(host.actions())

	send(t, c, protocol.ActionAddToQueue, track("bbbbbbbbbbb"))
	if got := len(host.actions()); got != before {
		t.Errorf("host received %d extra commands during queue add", got-before)
	}
}

func TestCoordinatorRemoveFromQueue(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	send(t, c, protocol.ActionAddToQueue, track("bbbbbbbbbbb"))

	// Missing index field is rejected.
	reply := send(t, c, protocol.ActionRemoveFromQueue, protocol.RemovePayload{})
	if reply.Success || reply.Error != ErrInvalidPayload.Error() {
		t.Fatalf("reply = %+v, want Invalid payload error", reply)
	}

	// Out of range is rejected.
	idx := 7
	reply = send(t, c, protocol.ActionRemoveFromQueue, protocol.RemovePayload{Index: &idx})
	if reply.Success {
		t.Fatal("reply.Success = true for out-of-range index, want false")
	}

	// Removing the last remaining entries stops the host.
	idx = 1
	send(t, c, protocol.ActionRemoveFromQueue, protocol.RemovePayload{Index: &idx})
	idx = 0
	send(t, c, protocol.ActionRemoveFromQueue, protocol.RemovePayload{Index: &idx})

	stop := host.lastOf(protocol.ActionPlayNew)
	if stop == nil {
		t.Fatal("host never received a stop")
	}
	var sent protocol.Track
	if err := stop.DecodePayload(&sent); err != nil || sent.VideoID != "" {
		t.Fatalf("host last PLAY_NEW = %+v, want empty stop signal", sent)
	}
	if got := repo.GetInt(context.Background(), store.KeyCurrentIndex, -99); got != -1 {
		t.Errorf("persisted index = %d after emptying, want -1", got)
	}
}

func TestCoordinatorClearQueue(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
	send(t, c, protocol.ActionClearQueue, nil)

	stop := host.lastOf(protocol.ActionPlayNew)
	var sent protocol.Track
	if err := stop.DecodePayload(&sent); err != nil || sent.VideoID != "" {
		t.Fatalf("host last PLAY_NEW = %+v, want empty stop signal", sent)
	}

	reply := send(t, c, protocol.ActionGetCurrentState, nil)
	if reply.State == nil || len(reply.State.Queue) != 0 || reply.State.CurrentIndex != -1 {
		t.Errorf("state after clear = %+v", reply.State)
	}
}

func TestCoordinatorNextPrev(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"} {
		send(t, c, protocol.ActionAddToQueue, track(id))
	}
	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))

	send(t, c, protocol.ActionNextTrack, nil)
	if got := repo.GetInt(context.Background(), store.KeyCurrentIndex, -99); got != 1 {
		t.Fatalf("index after next = %d, want 1", got)
	}

	// Previous from the first track wraps to the last.
	send(t, c, protocol.ActionPrevTrack, nil)
	send(t, c, protocol.ActionPrevTrack, nil)
	if got := repo.GetInt(context.Background(), store.KeyCurrentIndex, -99); got != 2 {
		t.Errorf("index after wrapping prev = %d, want 2", got)
	}
}

func TestCoordinatorNextOnEmptyQueue(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	reply := send(t, c, protocol.ActionNextTrack, nil)
	if !reply.Success {
		t.Fatalf("reply = %+v, want soft success on empty queue", reply)
	}
	if len(host.actions()) != 0 {
		t.Error("host received commands for a no-op advance")
	}
}

func TestCoordinatorTogglePlayForwards(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionTogglePlay, nil)
	if got := host.last(); got == nil || got.Action != protocol.ActionTogglePlay {
		t.Errorf("host last action = %v, want TOGGLE_PLAY", got)
	}
}

func TestCoordinatorSetVolumeClamps(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionSetVolume, protocol.VolumePayload{Volume: 150})
	if got := repo.GetInt(context.Background(), store.KeyVolume, -1); got != 100 {
		t.Errorf("persisted volume = %d, want 100", got)
	}

	send(t, c, protocol.ActionSetVolume, protocol.VolumePayload{Volume: -3})
	if got := repo.GetInt(context.Background(), store.KeyVolume, -1); got != 0 {
		t.Errorf("persisted volume = %d, want 0", got)
	}

	forwarded := host.lastOf(protocol.ActionSetVolume)
	var vp protocol.VolumePayload
	if err := forwarded.DecodePayload(&vp); err != nil || vp.Volume != 0 {
		t.Errorf("host received volume %d, want clamped 0", vp.Volume)
	}
}

func TestCoordinatorToggleRepeatCycles(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	want := []protocol.RepeatMode{protocol.RepeatAll, protocol.RepeatOne, protocol.RepeatOff}
	for _, mode := range want {
		send(t, c, protocol.ActionToggleRepeat, nil)
		got := repo.GetString(context.Background(), store.KeyRepeatMode, "")
		if got != string(mode) {
			t.Fatalf("persisted repeat mode = %q, want %q", got, mode)
		}
	}
}

func TestCoordinatorToggleMuteReachesHost(t *testing.T) {
	repo := newFakeRepo()
	c, host := newTestCoordinator(t, repo)

	send(t, c, protocol.ActionToggleMute, nil)
	if !repo.GetBool(context.Background(), store.KeyMuted, false) {
		t.Error("muted not persisted")
	}
	forwarded := host.lastOf(protocol.ActionToggleMute)
	var mp protocol.MutePayload
	if err := forwarded.DecodePayload(&mp); err != nil || !mp.Mute {
		t.Errorf("host received mute payload %+v", mp)
	}

	send(t, c, protocol.ActionToggleMute, nil)
	if repo.GetBool(context.Background(), store.KeyMuted, true) {
		t.Error("second toggle did not unmute")
	}
}

func TestCoordinatorCompletionPolicies(t *testing.T) {
	ended := func() protocol.StateUpdatePayload {
		return protocol.StateUpdatePayload{Phase: protocol.PhasePaused, Ended: true}
	}

	t.Run("repeat one replays current", func(t *testing.T) {
		repo := newFakeRepo()
		c, host := newTestCoordinator(t, repo)
		send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
		send(t, c, protocol.ActionToggleRepeat, nil) // ALL
		send(t, c, protocol.ActionToggleRepeat, nil) // ONE

		before := len(host.actions())
		send(t, c, protocol.ActionOffscreenStateUpdate, ended())

		replay := host.lastOf(protocol.ActionPlayNew)
		var sent protocol.Track
		if err := replay.DecodePayload(&sent); err != nil || sent.VideoID != "aaaaaaaaaaa" {
			t.Fatalf("host received %+v, want replay of same track", sent)
		}
		if len(host.actions()) == before {
			t.Fatal("host received nothing on repeat-one completion")
		}
	})

	t.Run("mid-queue advances", func(t *testing.T) {
		repo := newFakeRepo()
		c, host := newTestCoordinator(t, repo)
		send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))
		send(t, c, protocol.ActionAddToQueue, track("bbbbbbbbbbb"))

		send(t, c, protocol.ActionOffscreenStateUpdate, ended())

		next := host.lastOf(protocol.ActionPlayNew)
		var sent protocol.Track
		if err := next.DecodePayload(&sent); err != nil || sent.VideoID != "bbbbbbbbbbb" {
			t.Fatalf("host received %+v, want next track", sent)
		}
	})

	t.Run("last track without repeat stops", func(t *testing.T) {
		repo := newFakeRepo()
		c, host := newTestCoordinator(t, repo)
		send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))

		before := len(host.actions())
		send(t, c, protocol.ActionOffscreenStateUpdate, ended())
		if len(host.actions()) != before {
			t.Error("host received commands on terminal completion")
		}

		reply := send(t, c, protocol.ActionGetCurrentState, nil)
		if reply.State.IsPlaying {
			t.Error("IsPlaying = true after terminal completion")
		}
		if reply.State.CurrentIndex != 0 {
			t.Errorf("CurrentIndex = %d, want selection kept", reply.State.CurrentIndex)
		}
	})

	t.Run("repeat all wraps from last", func(t *testing.T) {
		repo := newFakeRepo()
		c, host := newTestCoordinator(t, repo)
		send(t, c, protocol.ActionAddToQueue, track("aaaaaaaaaaa"))
		send(t, c, protocol.ActionPlayNew, track("bbbbbbbbbbb"))
		send(t, c, protocol.ActionToggleRepeat, nil) // ALL

		send(t, c, protocol.ActionOffscreenStateUpdate, ended())

		next := host.lastOf(protocol.ActionPlayNew)
		var sent protocol.Track
		if err := next.DecodePayload(&sent); err != nil || sent.VideoID != "aaaaaaaaaaa" {
			t.Fatalf("host received %+v, want wrap to first track", sent)
		}
	})
}

func TestCoordinatorStateUpdateMergesFields(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)
	send(t, c, protocol.ActionPlayNew, track("aaaaaaaaaaa"))

	ct, dur := 12.5, 200.0
	muted := true
	send(t, c, protocol.ActionOffscreenStateUpdate, protocol.StateUpdatePayload{
		CurrentTime: &ct,
		Duration:    &dur,
		IsMuted:     &muted,
	})

	reply := send(t, c, protocol.ActionGetCurrentState, nil)
	state := reply.State
	if state.CurrentTime != 12.5 || state.Duration != 200 {
		t.Errorf("time = %v/%v, want 12.5/200", state.CurrentTime, state.Duration)
	}
	if !state.IsMuted {
		t.Error("IsMuted = false, want true")
	}
	// A time-only update must not flip the playing flag.
	if !state.IsPlaying {
		t.Error("IsPlaying = false after time-only update")
	}
}

func TestCoordinatorHydratesPersistedState(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	repo.SetTracks(ctx, store.KeyQueue, []protocol.Track{track("aaaaaaaaaaa"), track("bbbbbbbbbbb")})
	repo.SetInt(ctx, store.KeyCurrentIndex, 1)
	repo.SetInt(ctx, store.KeyVolume, 80)
	repo.SetString(ctx, store.KeyRepeatMode, string(protocol.RepeatAll))
	repo.SetBool(ctx, store.KeyShuffle, true)

	c, _ := newTestCoordinator(t, repo)
	reply := send(t, c, protocol.ActionGetCurrentState, nil)

	state := reply.State
	if len(state.Queue) != 2 || state.CurrentIndex != 1 {
		t.Errorf("hydrated queue=%d index=%d, want 2/1", len(state.Queue), state.CurrentIndex)
	}
	if state.Volume != 80 || state.RepeatMode != protocol.RepeatAll || !state.IsShuffle {
		t.Errorf("hydrated settings = %+v", state)
	}
	// Playback phase never survives a restart.
	if state.IsPlaying {
		t.Error("IsPlaying = true from hydration, want false")
	}
}

func TestCoordinatorHydrationClampsStaleIndex(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	repo.SetTracks(ctx, store.KeyQueue, []protocol.Track{track("aaaaaaaaaaa")})
	repo.SetInt(ctx, store.KeyCurrentIndex, 9)

	c, _ := newTestCoordinator(t, repo)
	reply := send(t, c, protocol.ActionGetCurrentState, nil)
	if reply.State.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want clamped to 0", reply.State.CurrentIndex)
	}
}

func TestCoordinatorOffscreenReadyRestoresSettings(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	repo.SetInt(ctx, store.KeyVolume, 30)
	repo.SetBool(ctx, store.KeyMuted, true)

	c, host := newTestCoordinator(t, repo)
	send(t, c, protocol.ActionOffscreenReady, nil)

	vol := host.lastOf(protocol.ActionSetVolume)
	var vp protocol.VolumePayload
	if err := vol.DecodePayload(&vp); err != nil || vp.Volume != 30 {
		t.Errorf("host received volume %d, want 30", vp.Volume)
	}
	mute := host.lastOf(protocol.ActionToggleMute)
	if mute == nil {
		t.Error("host never received mute restore")
	}
}

func TestCoordinatorHistory(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo) // HistoryLimit 3
	ctx := context.Background()

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc", "ddddddddddd"} {
		send(t, c, protocol.ActionPlayNew, track(id))
	}
	// Replaying an old track moves it to the front without a duplicate.
	send(t, c, protocol.ActionPlayNew, track("ccccccccccc"))

	history := repo.GetTracks(ctx, store.KeyHistory, nil)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want capped at 3", len(history))
	}
	if history[0].VideoID != "ccccccccccc" {
		t.Errorf("history head = %s, want most recent play", history[0].VideoID)
	}
	seen := map[string]bool{}
	for _, h := range history {
		if seen[h.VideoID] {
			t.Errorf("history contains duplicate %s", h.VideoID)
		}
		seen[h.VideoID] = true
	}
}

func TestCoordinatorUnsupportedAction(t *testing.T) {
	repo := newFakeRepo()
	c, _ := newTestCoordinator(t, repo)

	reply := send(t, c, protocol.Action("NO_SUCH_ACTION"), nil)
	if reply.Success {
		t.Error("reply.Success = true for unknown action, want false")
	}
}
