// Package player implements the playback host controller: it owns the
// single embed surface, translates abstract commands into the embed's
// wire protocol, and supervises playback liveness.
package player

import (
	"encoding/json"
	"fmt"
)

// Embed command functions (the narrow slice of the iframe API we use).
const (
	funcLoadVideoByID = "loadVideoById"
	funcPlayVideo     = "playVideo"
	funcPauseVideo    = "pauseVideo"
	funcStopVideo     = "stopVideo"
	funcMute          = "mute"
	funcUnMute        = "unMute"
	funcSetVolume     = "setVolume"
	funcSeekTo        = "seekTo"
)

// Embed-reported coarse playback states.
const (
	embedStateEnded     = 0
	embedStatePlaying   = 1
	embedStatePaused    = 2
	embedStateBuffering = 3
)

// wireCommand is an outbound command frame. Args is always present
// on the wire, even when empty.
type wireCommand struct {
	Event string `json:"event"`
	Func  string `json:"func"`
	Args  []any  `json:"args"`
}

// commandFrame encodes {event:"command", func, args}.
func commandFrame(fn string, args ...any) []byte {
	if args == nil {
		args = []any{}
	}
	data, _ := json.Marshal(wireCommand{Event: "command", Func: fn, Args: args})
	return data
}

// wireListening is the handshake probe frame.
type wireListening struct {
	Event   string `json:"event"`
	ID      int    `json:"id"`
	Channel string `json:"channel"`
}

// listeningFrame is the handshake probe the embed answers with its
// first delivery.
func listeningFrame() []byte {
	data, _ := json.Marshal(wireListening{Event: "listening", ID: 1, Channel: "widget"})
	return data
}

// loadArgs is the loadVideoById argument object.
type loadArgs struct {
	VideoID          string  `json:"videoId"`
	StartSeconds     float64 `json:"startSeconds"`
	SuggestedQuality string  `json:"suggestedQuality"`
}

// embedEvent is an inbound frame from the embed.
type embedEvent struct {
	Event string     `json:"event"`
	Info  *embedInfo `json:"info,omitempty"`
}

// embedInfo carries the fields of an infoDelivery. Pointers
// distinguish absent fields from zero values.
type embedInfo struct {
	PlayerState *int     `json:"playerState,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
	Muted       *bool    `json:"muted,omitempty"`
	Error       *int     `json:"error,omitempty"`
}

// isReadiness reports whether the event is the embed's first-contact
// signal.
func (e embedEvent) isReadiness() bool {
	return e.Event == "onReady" || e.Event == "initialDelivery"
}

func parseEmbedEvent(data []byte) (embedEvent, error) {
	var ev embedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return embedEvent{}, fmt.Errorf("parse embed event: %w", err)
	}
	return ev, nil
}

// translateEmbedError maps an embed error code to a user-facing
// message. The known restriction codes get a specific explanation;
// anything else passes through generically.
func translateEmbedError(code int) string {
	switch code {
	case 101, 150:
		return "Playback unavailable: the video owner does not allow embedded playback"
	default:
		return fmt.Sprintf("Playback error: %d", code)
	}
}
