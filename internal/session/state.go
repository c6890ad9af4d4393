// Package session implements the session coordinator: the single
// authority over queue, selection and playback settings.
package session

import (
	"math/rand"

	"github.com/mkleene/chime/internal/protocol"
)

// State is the in-memory session state. It is owned exclusively by the
// Coordinator; all mutation happens under the coordinator's command
// lock.
type State struct {
	Queue        []protocol.Track
	CurrentIndex int // -1 when nothing selected
	IsPlaying    bool
	RepeatMode   protocol.RepeatMode
	IsShuffle    bool
	Volume       int
	IsMuted      bool
	CurrentTime  float64
	Duration     float64
}

// NewState returns an empty session at the given volume.
func NewState(volume int) State {
	return State{
		Queue:        []protocol.Track{},
		CurrentIndex: -1,
		RepeatMode:   protocol.RepeatOff,
		Volume:       volume,
	}
}

// IndexOf returns the queue position of videoID, or -1.
func (s *State) IndexOf(videoID string) int {
	for i, t := range s.Queue {
		if t.VideoID == videoID {
			return i
		}
	}
	return -1
}

// CurrentTrack returns the selected track, or nil.
func (s *State) CurrentTrack() *protocol.Track {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentIndex]
}

// Add appends track unless its id is already queued. Reports whether
// the queue changed.
func (s *State) Add(track protocol.Track) bool {
	if s.IndexOf(track.VideoID) != -1 {
		return false
	}
	s.Queue = append(s.Queue, track)
	return true
}

// Remove deletes the entry at index and reconciles CurrentIndex:
// removing an entry before the selection shifts the selection down;
// removing the selection itself clamps to the new last entry, or
// clears the selection entirely when the queue empties. Reports the
// removed track and whether the queue is now empty with no selection.
func (s *State) Remove(index int) (removed protocol.Track, emptied bool, ok bool) {
	if index < 0 || index >= len(s.Queue) {
		return protocol.Track{}, false, false
	}

	removed = s.Queue[index]
	s.Queue = append(s.Queue[:index], s.Queue[index+1:]...)

	switch {
	case index < s.CurrentIndex:
		s.CurrentIndex--
	case index == s.CurrentIndex:
		if len(s.Queue) == 0 {
			s.CurrentIndex = -1
			s.IsPlaying = false
			emptied = true
		} else if s.CurrentIndex >= len(s.Queue) {
			s.CurrentIndex = len(s.Queue) - 1
		}
	}
	return removed, emptied, true
}

// Clear resets the queue, selection and transient time fields.
func (s *State) Clear() {
	s.Queue = []protocol.Track{}
	s.CurrentIndex = -1
	s.IsPlaying = false
	s.CurrentTime = 0
	s.Duration = 0
}

// Advance moves the selection forward. With shuffle on and more than
// one entry, a uniformly random index different from the current one
// is chosen; otherwise the selection wraps sequentially. Reports
// whether the selection moved (an empty queue never moves).
func (s *State) Advance(rng *rand.Rand) bool {
	n := len(s.Queue)
	if n == 0 {
		return false
	}

	if s.IsShuffle {
		if n > 1 {
			next := s.CurrentIndex
			for next == s.CurrentIndex {
				next = rng.Intn(n)
			}
			s.CurrentIndex = next
		} else {
			s.CurrentIndex = 0
		}
		return true
	}

	s.CurrentIndex = (s.CurrentIndex + 1) % n
	return true
}

// Retreat moves the selection backward, always wrapping sequentially
// regardless of shuffle. The asymmetry with Advance is deliberate.
func (s *State) Retreat() bool {
	n := len(s.Queue)
	if n == 0 {
		return false
	}
	s.CurrentIndex = (s.CurrentIndex - 1 + n) % n
	return true
}

// CompletionAction is what the coordinator does when the host reports
// the current track ended.
type CompletionAction int

const (
	// CompletionReplay restarts the current track (repeat-one).
	CompletionReplay CompletionAction = iota
	// CompletionAdvance moves to the next track.
	CompletionAdvance
	// CompletionStop leaves the selection in place and stops: no
	// repeat, last track, no shuffle.
	CompletionStop
)

// CompletionDecision applies the completion policy to the current
// state.
func (s *State) CompletionDecision() CompletionAction {
	switch {
	case s.RepeatMode == protocol.RepeatOne:
		return CompletionReplay
	case s.RepeatMode == protocol.RepeatAll,
		s.CurrentIndex < len(s.Queue)-1,
		s.IsShuffle:
		return CompletionAdvance
	default:
		return CompletionStop
	}
}

// ClampIndex corrects a restored selection that no longer fits the
// restored queue.
func (s *State) ClampIndex() {
	if s.CurrentIndex >= len(s.Queue) {
		if len(s.Queue) > 0 {
			s.CurrentIndex = 0
		} else {
			s.CurrentIndex = -1
		}
	}
}

// Snapshot copies the state into the wire representation.
func (s *State) Snapshot() protocol.StateSnapshot {
	queue := make([]protocol.Track, len(s.Queue))
	copy(queue, s.Queue)
	return protocol.StateSnapshot{
		Queue:        queue,
		CurrentIndex: s.CurrentIndex,
		IsPlaying:    s.IsPlaying,
		RepeatMode:   s.RepeatMode,
		IsShuffle:    s.IsShuffle,
		Volume:       s.Volume,
		IsMuted:      s.IsMuted,
		CurrentTime:  s.CurrentTime,
		Duration:     s.Duration,
	}
}
