// Package identity maps active sessions to a stable user id plus a weak
// per-device fingerprint ("pseudo-IP") used as a secondary ban key.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quickchat/server/internal/protocol"
)

// ErrUnauthenticated is returned when no active session matches a token.
var ErrUnauthenticated = errors.New("no active session")

// Identity is the resolved caller: who they are and which device they appear
// to be on.
type Identity struct {
	UID      string
	Username string
	PseudoIP string
}

type session struct {
	uid      string
	username string
	pseudoIP string
}

// Registry holds active sessions keyed by opaque token.
// Account persistence is out of scope; sessions live for the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Login creates a session for username on the device described by userAgent
// and returns the session token together with the resolved identity.
func (r *Registry) Login(username, userAgent string) (string, Identity, error) {
	username, err := protocol.ValidateName(username, protocol.MaxNameLength)
	if err != nil {
		return "", Identity{}, err
	}

	token := uuid.NewString()
	s := &session{
		uid:      uuid.NewString(),
		username: username,
		pseudoIP: PseudoIP(userAgent),
	}

	r.mu.Lock()
	r.sessions[token] = s
	r.mu.Unlock()

	log.Info().Str("component", "identity").Str("uid", s.uid).Str("username", username).Msg("session created")
	return token, Identity{UID: s.uid, Username: s.username, PseudoIP: s.pseudoIP}, nil
}

// Resolve returns the identity bound to token, or ErrUnauthenticated.
// It has no side effects.
func (r *Registry) Resolve(token string) (Identity, error) {
	r.mu.RLock()
	s, ok := r.sessions[token]
	r.mu.RUnlock()
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UID: s.uid, Username: s.username, PseudoIP: s.pseudoIP}, nil
}

// Logout removes a session. Unknown tokens are a no-op.
func (r *Registry) Logout(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// PseudoIP derives the device fingerprint from client metadata (typically
// the User-Agent string): a 31-multiplier rolling hash accumulated with
// 32-bit signed overflow, formatted as a tagged decimal. It is deliberately
// weak — collisions and spoofing are expected; it only raises the cost of
// trivial ban evasion.
func PseudoIP(meta string) string {
	var h int32
	for _, c := range meta {
		h = h*31 + int32(c)
	}
	// Widen before negating: -MinInt32 overflows int32 back to itself.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("IP-%d", v)
}

// TrimUserAgent normalizes a raw User-Agent header before hashing so that
// incidental whitespace does not fork the fingerprint.
func TrimUserAgent(ua string) string {
	return strings.TrimSpace(ua)
}
