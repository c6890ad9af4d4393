// Package bus provides addressed message delivery between the
// coordinator, the playback host and panels. Sends are fire-and-forget
// with an optional reply: a missing receiver resolves to a soft
// failure, never an error the sender has to survive.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkleene/chime/internal/protocol"
	"github.com/rs/zerolog"
)

// Handler processes one inbound message for an endpoint. Returning nil
// means the endpoint has no reply for this message.
type Handler func(ctx context.Context, msg protocol.Message) *protocol.Reply

// DeliveryState classifies the outcome of a send.
type DeliveryState int

const (
	Undelivered DeliveryState = iota
	DeliveredNoReply
	DeliveredWithReply
)

// Delivery is the result of a send.
type Delivery struct {
	State  DeliveryState
	Reply  protocol.Reply
	Reason string // set when Undelivered
}

// AsReply collapses a Delivery into the reply the sender would have
// seen: undeliverable becomes a soft failure, a reply-less delivery
// becomes a plain success.
func (d Delivery) AsReply() protocol.Reply {
	switch d.State {
	case DeliveredWithReply:
		return d.Reply
	case DeliveredNoReply:
		return protocol.OK()
	default:
		return protocol.Failf("%s", d.Reason)
	}
}

// Bus routes messages by target. The background and offscreen targets
// have at most one registered handler each; the popup target fans out
// to every subscribed panel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[protocol.Target]Handler
	subs     map[int]chan protocol.Message
	nextSub  int
	logger   zerolog.Logger
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[protocol.Target]Handler),
		subs:     make(map[int]chan protocol.Message),
		logger:   logger.With().Str("component", "bus").Logger(),
	}
}

// Register installs the handler for a target, replacing any previous
// one.
func (b *Bus) Register(target protocol.Target, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[target] = h
}

// Unregister removes the handler for a target.
func (b *Bus) Unregister(target protocol.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, target)
}

// Subscribe attaches a panel to popup-targeted broadcasts. The
// returned channel is buffered; a slow panel drops messages rather
// than blocking the sender.
func (b *Bus) Subscribe() (int, <-chan protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan protocol.Message, 16)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe detaches a panel and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Send delivers msg to its target. Popup messages are broadcast to all
// subscribed panels; other targets invoke the registered handler
// inline and carry back its reply. A missing receiver is reported as
// Undelivered, not raised.
func (b *Bus) Send(ctx context.Context, msg protocol.Message) Delivery {
	if msg.Target == protocol.TargetPopup {
		return b.broadcast(msg)
	}

	b.mu.RLock()
	h, ok := b.handlers[msg.Target]
	b.mu.RUnlock()

	if !ok {
		b.logger.Debug().
			Str("target", string(msg.Target)).
			Str("action", string(msg.Action)).
			Msg("No receiver for message")
		return Delivery{State: Undelivered, Reason: fmt.Sprintf("no receiver for target %q", msg.Target)}
	}

	reply := h(ctx, msg)
	if reply == nil {
		return Delivery{State: DeliveredNoReply}
	}
	return Delivery{State: DeliveredWithReply, Reply: *reply}
}

func (b *Bus) broadcast(msg protocol.Message) Delivery {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		return Delivery{State: Undelivered, Reason: "no panels connected"}
	}

	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.logger.Warn().Int("sub", id).Str("action", string(msg.Action)).Msg("Panel slow, dropping broadcast")
		}
	}
	return Delivery{State: DeliveredNoReply}
}
