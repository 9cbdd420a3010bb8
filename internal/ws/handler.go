// Package ws owns websocket transport for the live feed and submits.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"quickchat/server/internal/feed"
	"quickchat/server/internal/gate"
	"quickchat/server/internal/identity"
	"quickchat/server/internal/protocol"
	"quickchat/server/internal/store"
)

const writeTimeout = 5 * time.Second

// Handler upgrades requests and serves one connection per room feed.
type Handler struct {
	identity *identity.Registry
	store    *store.Store
	gate     *gate.Gate
	hub      *feed.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler over the gate and feed hub.
func NewHandler(reg *identity.Registry, st *store.Store, g *gate.Gate, hub *feed.Hub) *Handler {
	return &Handler{
		identity: reg,
		store:    st,
		gate:     g,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds websocket routes on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(c.Request().Context(), conn)
	return nil
}

// serveConn handles one connection. gorilla/websocket allows only one
// concurrent writer, so after the handshake every outbound frame — hub
// fan-out, pongs, errors, notices — is queued on the subscriber channel
// and written by the single writer goroutine. The read loop never touches
// the conn for writes.
func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(1 << 20)

	var hello protocol.Message
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}
	if hello.Type != protocol.TypeHello {
		h.writeDirectError(conn, "first message must be hello")
		return
	}

	actor, err := h.identity.Resolve(hello.Token)
	if err != nil {
		h.writeDirectError(conn, "not logged in")
		return
	}
	if _, err := h.store.GetRoom(ctx, hello.RoomID); err != nil {
		h.writeDirectError(conn, "room not found")
		return
	}
	if err := h.store.EnsureMember(ctx, hello.RoomID, actor.UID, actor.Username); err != nil {
		h.writeDirectError(conn, "join failed")
		return
	}

	recent, err := h.store.RecentMessages(ctx, hello.RoomID, feed.SnapshotLimit)
	if err != nil {
		h.writeDirectError(conn, "snapshot failed")
		return
	}
	snapshot := make([]protocol.ChatEntry, 0, len(recent))
	for _, m := range recent {
		snapshot = append(snapshot, protocol.ChatEntry{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UID:       m.UID,
			Username:  m.Username,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
			System:    m.System,
		})
	}

	sub := h.hub.Subscribe(actor.UID, hello.RoomID, 64)
	defer h.hub.Unsubscribe(sub.ID)

	go func() {
		for out := range sub.Ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}()

	sub.Send(protocol.Message{Type: protocol.TypeSnapshot, RoomID: hello.RoomID, Snapshot: snapshot})

	log.Info().Str("component", "ws").Str("uid", actor.UID).Str("room", hello.RoomID).Msg("connection serving")

	for {
		var in protocol.Message
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type {
		case protocol.TypePing:
			sub.Send(protocol.Message{Type: protocol.TypePong, TS: in.TS})
		case protocol.TypeSendText:
			h.handleSendText(ctx, sub, hello.Token, hello.RoomID, actor, in.Body)
		default:
			sub.Send(protocol.Message{Type: protocol.TypeError, Error: fmt.Sprintf("unknown message type %q", in.Type)})
		}
	}
}

func (h *Handler) handleSendText(ctx context.Context, sub *feed.Subscriber, token, roomID string, actor identity.Identity, body string) {
	body, err := protocol.ValidateBody(body)
	if err != nil {
		sub.Send(protocol.Message{Type: protocol.TypeError, Error: err.Error()})
		return
	}

	res, err := h.gate.Submit(ctx, token, roomID, body)
	if err != nil {
		log.Error().Str("component", "ws").Str("uid", actor.UID).Err(err).Msg("submit failed")
		sub.Send(protocol.Message{Type: protocol.TypeError, Error: "internal error"})
		return
	}

	switch res.Status {
	case gate.Rejected:
		sub.Send(protocol.Message{Type: protocol.TypeError, Error: rejectText(res)})
	case gate.AcceptedNoPersist:
		// Private notices ride the hub so every connection the caller holds
		// in this room sees them, not just the one that submitted.
		if res.Notice != "" {
			h.hub.Notify(actor.UID, roomID, res.Notice)
		}
	case gate.AcceptedPersisted:
		// Fan-out happens through the hub; nothing extra to send here.
	}
}

func rejectText(res gate.Result) string {
	switch res.Reason {
	case gate.Banned:
		reason := "no reason provided"
		if res.Ban != nil && res.Ban.Reason != "" {
			reason = res.Ban.Reason
		}
		return fmt.Sprintf("access denied: banned (%s)", reason)
	case gate.Muted:
		return "you do not have permission to speak"
	case gate.ProhibitedContent:
		return "your message contains prohibited language"
	case gate.RateLimited:
		return fmt.Sprintf("slow mode: wait %s", res.RetryAfter.Round(time.Millisecond))
	case gate.RoomNotFound:
		return "room not found"
	case gate.NotLoggedIn:
		return "not logged in"
	}
	return "rejected"
}

// writeDirectError reports a handshake failure. Safe to write directly:
// the writer goroutine does not exist yet.
func (h *Handler) writeDirectError(conn *websocket.Conn, text string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(protocol.Message{Type: protocol.TypeError, Error: text})
}
