// Package httpapi exposes the chat core over REST: session login, message
// submission, the room moderation snapshot, and the admin ban list.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"quickchat/server/internal/gate"
	"quickchat/server/internal/identity"
	"quickchat/server/internal/moderation"
	"quickchat/server/internal/protocol"
	"quickchat/server/internal/store"
	"quickchat/server/internal/ws"
)

// tokenHeader carries the session token on authenticated requests.
const tokenHeader = "X-Session-Token"

// Server is the Echo application.
type Server struct {
	echo     *echo.Echo
	identity *identity.Registry
	store    *store.Store
	mod      *moderation.Service
	gate     *gate.Gate
}

// New constructs an Echo app with REST routes plus the websocket feed.
// wsHandler may be nil (REST-only embedding, tests).
func New(reg *identity.Registry, st *store.Store, mod *moderation.Service, g *gate.Gate, wsHandler *ws.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, identity: reg, store: st, mod: mod, gate: g}
	s.registerRoutes()
	if wsHandler != nil {
		wsHandler.Register(e)
	}
	return s
}

// Echo exposes the underlying Echo instance for tests and for main to run.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/api/session", s.handleLogin)
	s.echo.GET("/api/rooms", s.handleListRooms)
	s.echo.GET("/api/rooms/:id/state", s.handleRoomState)
	s.echo.POST("/api/rooms/:id/messages", s.handleSubmit)
	s.echo.GET("/api/rooms/:id/messages", s.handleRecentMessages)
	s.echo.GET("/api/rooms/:id/bans", s.handleListBans)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UID      string `json:"uid"`
	Username string `json:"username"`
	PseudoIP string `json:"pseudo_ip"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ua := identity.TrimUserAgent(c.Request().UserAgent())
	token, id, err := s.identity.Login(req.Username, ua)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{
		Token:    token,
		UID:      id.UID,
		Username: id.Username,
		PseudoIP: id.PseudoIP,
	})
}

func (s *Server) handleListRooms(c echo.Context) error {
	rooms, err := s.store.ListRooms(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	return c.JSON(http.StatusOK, rooms)
}

func (s *Server) handleRoomState(c echo.Context) error {
	snap, err := s.mod.Snapshot(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	return c.JSON(http.StatusOK, snap)
}

type submitRequest struct {
	Body string `json:"body"`
}

type submitResponse struct {
	Status       gate.Status         `json:"status"`
	Reason       gate.Reason         `json:"reason,omitempty"`
	RetryAfterMS int64               `json:"retry_after_ms,omitempty"`
	Notice       string              `json:"notice,omitempty"`
	Message      *protocol.ChatEntry `json:"message,omitempty"`
	BanReason    string              `json:"ban_reason,omitempty"`
	BanUntil     int64               `json:"ban_until,omitempty"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	body, err := protocol.ValidateBody(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.gate.Submit(c.Request().Context(), c.Request().Header.Get(tokenHeader), c.Param("id"), body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}

	out := submitResponse{
		Status:       res.Status,
		Reason:       res.Reason,
		RetryAfterMS: res.RetryAfter.Milliseconds(),
		Notice:       res.Notice,
		Message:      res.Entry,
	}
	if res.Ban != nil {
		out.BanReason = res.Ban.Reason
		out.BanUntil = res.Ban.Until
	}

	status := http.StatusOK
	if res.Status == gate.Rejected {
		switch res.Reason {
		case gate.NotLoggedIn:
			status = http.StatusUnauthorized
		case gate.RoomNotFound:
			status = http.StatusNotFound
		case gate.Banned, gate.Muted:
			status = http.StatusForbidden
		case gate.RateLimited:
			status = http.StatusTooManyRequests
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	return c.JSON(status, out)
}

func (s *Server) handleRecentMessages(c echo.Context) error {
	msgs, err := s.store.RecentMessages(c.Request().Context(), c.Param("id"), 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	out := make([]protocol.ChatEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.ChatEntry{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UID:       m.UID,
			Username:  m.Username,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
			System:    m.System,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type banView struct {
	ID       int64  `json:"id"`
	UID      string `json:"uid"`
	PseudoIP string `json:"pseudo_ip,omitempty"`
	Reason   string `json:"reason"`
	BannedBy string `json:"banned_by"`
	IssuedAt int64  `json:"issued_at"`
	Until    int64  `json:"until"`
	Expired  bool   `json:"expired"`
}

// handleListBans is privilege-gated: the caller must hold the ban
// privilege in the room.
func (s *Server) handleListBans(c echo.Context) error {
	roomID := c.Param("id")
	actor, err := s.identity.Resolve(c.Request().Header.Get(tokenHeader))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
	}
	allowed, err := s.mod.HasPrivilege(c.Request().Context(), roomID, actor.UID, moderation.PrivilegeBan)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusForbidden, "ban privilege required")
	}

	bans, err := s.store.ListBans(c.Request().Context(), roomID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
	nowMS := time.Now().UnixMilli()
	out := make([]banView, 0, len(bans))
	for _, b := range bans {
		out = append(out, banView{
			ID:       b.ID,
			UID:      b.UID,
			PseudoIP: b.PseudoIP,
			Reason:   b.Reason,
			BannedBy: b.BannedBy,
			IssuedAt: b.IssuedAt,
			Until:    b.Until,
			Expired:  b.Until <= nowMS,
		})
	}
	return c.JSON(http.StatusOK, out)
}
