package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mkleene/chime/internal/protocol"
	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Absent keys return the caller's default untouched.
	if got := s.GetInt(ctx, KeyCurrentIndex, -1); got != -1 {
		t.Errorf("GetInt() = %d, want -1", got)
	}
	if got := s.GetInt(ctx, KeyVolume, 50); got != 50 {
		t.Errorf("GetInt() = %d, want 50", got)
	}
	if got := s.GetString(ctx, KeyRepeatMode, "OFF"); got != "OFF" {
		t.Errorf("GetString() = %q, want OFF", got)
	}
	if got := s.GetBool(ctx, KeyShuffle, false); got {
		t.Error("GetBool() = true, want default false")
	}
	if got := s.GetTracks(ctx, KeyQueue, nil); got != nil {
		t.Errorf("GetTracks() = %v, want nil default", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetInt(ctx, KeyVolume, 80); err != nil {
		t.Fatalf("SetInt() error = %v", err)
	}
	if got := s.GetInt(ctx, KeyVolume, 50); got != 80 {
		t.Errorf("GetInt() = %d, want 80", got)
	}

	if err := s.SetString(ctx, KeyRepeatMode, "ALL"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}
	if got := s.GetString(ctx, KeyRepeatMode, "OFF"); got != "ALL" {
		t.Errorf("GetString() = %q, want ALL", got)
	}

	if err := s.SetBool(ctx, KeyMuted, true); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if !s.GetBool(ctx, KeyMuted, false) {
		t.Error("GetBool() = false, want true")
	}

	queue := []protocol.Track{
		{VideoID: "dQw4w9WgXcQ", Title: "First", Channel: "A"},
		{VideoID: "9bZkp7q19f0", Title: "Second", Channel: "B"},
	}
	if err := s.SetTracks(ctx, KeyQueue, queue); err != nil {
		t.Fatalf("SetTracks() error = %v", err)
	}
	got := s.GetTracks(ctx, KeyQueue, nil)
	if len(got) != 2 || got[0].VideoID != "dQw4w9WgXcQ" || got[1].Title != "Second" {
		t.Errorf("GetTracks() = %+v", got)
	}
}

func TestStoreUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, v := range []int{1, 2, 3} {
		if err := s.SetInt(ctx, KeyCurrentIndex, v); err != nil {
			t.Fatalf("SetInt(%d) error = %v", v, err)
		}
	}
	if got := s.GetInt(ctx, KeyCurrentIndex, -1); got != 3 {
		t.Errorf("GetInt() = %d after upserts, want 3", got)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	ctx := context.Background()

	s, err := Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SetInt(ctx, KeyVolume, 35); err != nil {
		t.Fatalf("SetInt() error = %v", err)
	}
	if err := s.SetTracks(ctx, KeyQueue, []protocol.Track{{VideoID: "dQw4w9WgXcQ"}}); err != nil {
		t.Fatalf("SetTracks() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	if got := s2.GetInt(ctx, KeyVolume, 50); got != 35 {
		t.Errorf("GetInt() after reopen = %d, want 35", got)
	}
	if got := s2.GetTracks(ctx, KeyQueue, nil); len(got) != 1 {
		t.Errorf("GetTracks() after reopen = %+v, want 1 entry", got)
	}
}

func TestStoreCorruptValueFallsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A value that fails to decode must yield the default, not an
	// error or a partial decode.
	if _, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`, KeyVolume, "not json"); err != nil {
		t.Fatalf("raw insert error = %v", err)
	}
	if got := s.GetInt(ctx, KeyVolume, 50); got != 50 {
		t.Errorf("GetInt() on corrupt value = %d, want default 50", got)
	}
}

func TestStoreEmptyTrackList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetTracks(ctx, KeyQueue, []protocol.Track{}); err != nil {
		t.Fatalf("SetTracks() error = %v", err)
	}
	got := s.GetTracks(ctx, KeyQueue, []protocol.Track{{VideoID: "x"}})
	if len(got) != 0 {
		t.Errorf("GetTracks() = %+v, want stored empty list over default", got)
	}
}
