// Package protocol defines the message vocabulary shared by the
// coordinator, the playback host and panels. Every message carries a
// target endpoint, an action from a closed set, and an action-specific
// payload.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Target identifies a message endpoint.
type Target string

const (
	TargetBackground Target = "background" // session coordinator
	TargetOffscreen  Target = "offscreen"  // playback host
	TargetPopup      Target = "popup"      // any connected panel
)

// Action is a command or event name.
type Action string

const (
	// Playback commands
	ActionPlayNew    Action = "PLAY_NEW"
	ActionTogglePlay Action = "TOGGLE_PLAY"
	ActionNextTrack  Action = "NEXT_TRACK"
	ActionPrevTrack  Action = "PREV_TRACK"
	ActionSeek       Action = "SEEK"

	// Settings commands
	ActionToggleRepeat    Action = "TOGGLE_REPEAT"
	ActionToggleShuffle   Action = "TOGGLE_SHUFFLE"
	ActionToggleMute      Action = "TOGGLE_MUTE"
	ActionSetVolume       Action = "SET_VOLUME"
	ActionGetCurrentState Action = "GET_CURRENT_STATE"

	// Queue commands
	ActionAddToQueue      Action = "ADD_TO_QUEUE"
	ActionRemoveFromQueue Action = "REMOVE_FROM_QUEUE"
	ActionClearQueue      Action = "CLEAR_QUEUE"

	// Host events and panel sync
	ActionOffscreenReady       Action = "OFFSCREEN_READY"
	ActionOffscreenStateUpdate Action = "OFFSCREEN_STATE_UPDATE"
	ActionSyncUI               Action = "SYNC_UI"
	ActionShowError            Action = "SHOW_ERROR"
)

// RepeatMode cycles OFF -> ALL -> ONE -> OFF.
type RepeatMode string

const (
	RepeatOff RepeatMode = "OFF"
	RepeatAll RepeatMode = "ALL"
	RepeatOne RepeatMode = "ONE"
)

// Next returns the mode that follows m in the cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// Track is a playable catalog entry. Tracks are immutable and compared
// by VideoID.
type Track struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Thumbnail string `json:"thumbnail"`
}

// Message is the unit of exchange on the bus.
type Message struct {
	Target  Target          `json:"target"`
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a Message, marshalling payload. A nil payload
// produces a message with no payload field.
func NewMessage(target Target, action Action, payload any) (Message, error) {
	msg := Message{Target: target, Action: action}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload for %s: %w", action, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// DecodePayload unmarshals the message payload into v. A missing
// payload is an error; commands that require one must check.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Action)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Action, err)
	}
	return nil
}

// Reply is the response to a single command. Failed commands carry
// Error; queue operations additionally report Added/Played/Reason.
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Played  bool   `json:"played,omitempty"`
	Added   bool   `json:"added,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// State is filled on GET_CURRENT_STATE replies so one-shot panels
	// do not have to wait for the SYNC_UI broadcast.
	State *StateSnapshot `json:"state,omitempty"`
}

// OK is the plain success reply.
func OK() Reply { return Reply{Success: true} }

// Fail wraps err into a soft-failure reply.
func Fail(err error) Reply { return Reply{Success: false, Error: err.Error()} }

// Failf formats a soft-failure reply.
func Failf(format string, args ...any) Reply {
	return Reply{Success: false, Error: fmt.Sprintf(format, args...)}
}

// StateSnapshot is the canonical session state broadcast to panels as
// the SYNC_UI payload.
type StateSnapshot struct {
	Queue        []Track    `json:"queue"`
	CurrentIndex int        `json:"currentIndex"`
	IsPlaying    bool       `json:"isPlaying"`
	RepeatMode   RepeatMode `json:"repeatMode"`
	IsShuffle    bool       `json:"isShuffle"`
	Volume       int        `json:"volume"`
	IsMuted      bool       `json:"isMuted"`
	CurrentTime  float64    `json:"currentTime"`
	Duration     float64    `json:"duration"`
}

// CurrentTrack returns the selected track, or nil when nothing is
// selected.
func (s *StateSnapshot) CurrentTrack() *Track {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentIndex]
}

// RemovePayload carries the queue position for REMOVE_FROM_QUEUE.
// Index is a pointer so an absent field can be rejected as invalid.
type RemovePayload struct {
	Index *int `json:"index"`
}

// VolumePayload carries the level for SET_VOLUME.
type VolumePayload struct {
	Volume int `json:"volume"`
}

// MutePayload carries the explicit mute state forwarded to the host.
type MutePayload struct {
	Mute bool `json:"mute"`
}

// SeekPayload carries the target position in seconds.
type SeekPayload struct {
	Time float64 `json:"time"`
}

// StateUpdatePayload is the partial state reported by the playback
// host. Pointer fields distinguish "absent" from zero so the
// coordinator merges only what was reported.
type StateUpdatePayload struct {
	Phase       string   `json:"state,omitempty"` // "playing" or "paused"
	Ended       bool     `json:"ended,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	IsMuted     *bool    `json:"isMuted,omitempty"`
}

// Host-reported playback phases.
const (
	PhasePlaying = "playing"
	PhasePaused  = "paused"
)

// ErrorPayload carries a user-facing message for SHOW_ERROR.
type ErrorPayload struct {
	Message string `json:"message"`
}
