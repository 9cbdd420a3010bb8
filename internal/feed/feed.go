// Package feed is the in-memory live message feed: per-room subscriber
// sets with buffered send channels. Slow subscribers drop frames rather
// than block the publisher.
package feed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"quickchat/server/internal/protocol"
)

// SnapshotLimit is how many recent messages a joining subscriber receives.
const SnapshotLimit = 50

// Subscriber is one live feed consumer. Frames are delivered on Ch; the
// channel is closed on Unsubscribe.
type Subscriber struct {
	ID     string
	UID    string
	RoomID string
	Ch     chan protocol.Message
}

// Send queues one caller-only frame for this subscriber, dropping it when
// the buffer is full. It must not be called after Unsubscribe: the channel
// is closed there.
func (s *Subscriber) Send(msg protocol.Message) {
	select {
	case s.Ch <- msg:
	default:
	}
}

type subState struct {
	uid    string
	roomID string
	ch     chan protocol.Message
}

// Hub tracks subscribers per room and fans out published messages.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subState
	nextID atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subState)}
}

// Subscribe registers a consumer for one room's feed.
func (h *Hub) Subscribe(uid, roomID string, buf int) *Subscriber {
	if buf <= 0 {
		buf = 64
	}
	id := fmt.Sprintf("s%d", h.nextID.Add(1))
	st := &subState{uid: uid, roomID: roomID, ch: make(chan protocol.Message, buf)}

	h.mu.Lock()
	h.subs[id] = st
	count := len(h.subs)
	h.mu.Unlock()

	log.Debug().Str("component", "feed").Str("sub", id).Str("room", roomID).Int("total_subs", count).Msg("subscribed")
	return &Subscriber{ID: id, UID: uid, RoomID: roomID, Ch: st.ch}
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	st, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(st.ch)
	}
	h.mu.Unlock()
}

// Publish fans a persisted chat entry out to every subscriber of its room.
// A full subscriber buffer drops the frame for that subscriber only.
func (h *Hub) Publish(entry protocol.ChatEntry) {
	msg := protocol.Message{Type: protocol.TypeChat, Chat: &entry}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, st := range h.subs {
		if st.roomID != entry.RoomID {
			continue
		}
		select {
		case st.ch <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("component", "feed").Str("room", entry.RoomID).Int("dropped", dropped).Msg("slow subscribers dropped a frame")
	}
}

// Notify delivers a private, caller-only notice to one user's subscriptions
// in a room. Notices are never persisted.
func (h *Hub) Notify(uid, roomID, text string) {
	msg := protocol.Message{Type: protocol.TypeNotice, RoomID: roomID, Body: text}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, st := range h.subs {
		if st.uid != uid || st.roomID != roomID {
			continue
		}
		select {
		case st.ch <- msg:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers across rooms.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
