// Package moderation owns per-room moderation state and the actions that
// mutate it: bans, mutes, and role changes. Every successful ban or mute is
// broadcast to the room as a persisted system message and recorded in the
// audit log.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"quickchat/server/internal/identity"
	"quickchat/server/internal/protocol"
	"quickchat/server/internal/store"
)

// Privileges grantable per user per room.
const (
	PrivilegeBan  = "ban"
	PrivilegeMute = "mute"
)

// ErrCannotDemoteOwner is returned when an action would demote or ban a
// room owner. Owner state is never mutable through this package.
var ErrCannotDemoteOwner = errors.New("forbidden: cannot demote or ban a room owner")

// ErrNotAMember is returned when a role change targets a uid that is not a
// member of the room (moderators are always a subset of members).
var ErrNotAMember = errors.New("target is not a member of the room")

// ErrInvalidDuration is returned when a ban duration is not positive: the
// ban's end must lie strictly after its start.
var ErrInvalidDuration = errors.New("ban duration must be positive")

// Notifier receives persisted system messages for fan-out to live
// subscribers. It must not block.
type Notifier interface {
	Publish(entry protocol.ChatEntry)
}

// Service mutates moderation state through the store.
type Service struct {
	store    *store.Store
	notifier Notifier
	now      func() time.Time
}

// NewService builds a moderation service. notifier may be nil when no live
// feed is attached (offline tools, tests).
func NewService(st *store.Store, notifier Notifier) *Service {
	return &Service{store: st, notifier: notifier, now: time.Now}
}

// Ban appends a ban entry for targetUID lasting d from now and broadcasts a
// system notice. The entry's secondary key is the target's own last-known
// device fingerprint, taken from their message history; if they have none,
// the ban is uid-only. Banning an owner is rejected.
func (s *Service) Ban(ctx context.Context, roomID string, actor identity.Identity, targetUID string, d time.Duration, reason string) (store.Ban, error) {
	if d <= 0 {
		return store.Ban{}, ErrInvalidDuration
	}
	if err := s.rejectIfOwner(ctx, roomID, targetUID); err != nil {
		return store.Ban{}, err
	}

	pseudoIP, _, err := s.store.LastPseudoIP(ctx, roomID, targetUID)
	if err != nil {
		return store.Ban{}, err
	}

	now := s.now()
	b := store.Ban{
		RoomID:   roomID,
		UID:      targetUID,
		PseudoIP: pseudoIP,
		Reason:   reason,
		BannedBy: actor.UID,
		IssuedAt: now.UnixMilli(),
		Until:    now.Add(d).UnixMilli(),
	}
	id, err := s.store.InsertBan(ctx, b)
	if err != nil {
		return store.Ban{}, err
	}
	b.ID = id

	log.Info().Str("component", "moderation").Str("room", roomID).
		Str("target", targetUID).Str("actor", actor.UID).Dur("duration", d).Msg("user banned")

	s.audit(ctx, roomID, actor, "ban", targetUID, reason)
	s.systemNotice(ctx, roomID, fmt.Sprintf("User %q was banned by %q", targetUID, protocol.SystemUsername))
	return b, nil
}

// Unban removes every ban entry for targetUID in the room. Unbanning a user
// with no active ban is a no-op, not an error.
func (s *Service) Unban(ctx context.Context, roomID string, actor identity.Identity, targetUID string) (int64, error) {
	n, err := s.store.DeleteBansForUser(ctx, roomID, targetUID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Str("component", "moderation").Str("room", roomID).
			Str("target", targetUID).Int64("removed", n).Msg("user unbanned")
		s.audit(ctx, roomID, actor, "unban", targetUID, "")
		s.systemNotice(ctx, roomID, fmt.Sprintf("User %q was unbanned", targetUID))
	}
	return n, nil
}

// Mute silences targetUID indefinitely and broadcasts a system notice.
// Idempotent; keyed by uid only (no fingerprint matching for mutes).
func (s *Service) Mute(ctx context.Context, roomID string, actor identity.Identity, targetUID, reason string) error {
	if err := s.rejectIfOwner(ctx, roomID, targetUID); err != nil {
		return err
	}
	err := s.store.InsertMute(ctx, store.Mute{
		RoomID:  roomID,
		UID:     targetUID,
		Reason:  reason,
		MutedBy: actor.UID,
	})
	if err != nil {
		return err
	}
	log.Info().Str("component", "moderation").Str("room", roomID).
		Str("target", targetUID).Str("actor", actor.UID).Msg("user muted")
	s.audit(ctx, roomID, actor, "mute", targetUID, reason)
	s.systemNotice(ctx, roomID, fmt.Sprintf("User %q was muted by %q", targetUID, protocol.SystemUsername))
	return nil
}

// Unmute lifts a mute. Idempotent.
func (s *Service) Unmute(ctx context.Context, roomID string, actor identity.Identity, targetUID string) error {
	if err := s.store.DeleteMute(ctx, roomID, targetUID); err != nil {
		return err
	}
	s.audit(ctx, roomID, actor, "unmute", targetUID, "")
	return nil
}

// AssignModerator promotes a member to moderator. The target must already
// be a member; owners cannot be reassigned.
func (s *Service) AssignModerator(ctx context.Context, roomID string, actor identity.Identity, targetUID string) error {
	m, isMember, err := s.store.GetMember(ctx, roomID, targetUID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotAMember
	}
	if m.Role == store.RoleOwner {
		return ErrCannotDemoteOwner
	}
	if err := s.store.SetRole(ctx, roomID, targetUID, store.RoleModerator); err != nil {
		return err
	}
	s.audit(ctx, roomID, actor, "assign_moderator", targetUID, "")
	return nil
}

// RemoveModerator demotes a moderator back to plain member. Demoting an
// owner is rejected and leaves the role unchanged.
func (s *Service) RemoveModerator(ctx context.Context, roomID string, actor identity.Identity, targetUID string) error {
	m, isMember, err := s.store.GetMember(ctx, roomID, targetUID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotAMember
	}
	if m.Role == store.RoleOwner {
		return ErrCannotDemoteOwner
	}
	if err := s.store.SetRole(ctx, roomID, targetUID, store.RoleMember); err != nil {
		return err
	}
	s.audit(ctx, roomID, actor, "remove_moderator", targetUID, "")
	return nil
}

// MatchBan returns the unexpired ban entry matching uid or pseudoIP, if any.
func (s *Service) MatchBan(ctx context.Context, roomID, uid, pseudoIP string) (store.Ban, bool, error) {
	return s.store.MatchBan(ctx, roomID, uid, pseudoIP, s.now())
}

// IsMuted reports whether uid is muted in the room.
func (s *Service) IsMuted(ctx context.Context, roomID, uid string) (bool, error) {
	return s.store.IsMuted(ctx, roomID, uid)
}

// HasPrivilege reports whether uid holds the named capability in the room.
func (s *Service) HasPrivilege(ctx context.Context, roomID, uid, privilege string) (bool, error) {
	return s.store.HasPrivilege(ctx, roomID, uid, privilege)
}

// ResolveUsername maps a display name to a uid within the room.
func (s *Service) ResolveUsername(ctx context.Context, roomID, username string) (string, bool, error) {
	return s.store.ResolveUsername(ctx, roomID, username)
}

// MemberStatus is one member's row in a room snapshot.
type MemberStatus struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Banned   bool   `json:"banned"`
	Muted    bool   `json:"muted"`
}

// RoomSnapshot is the live room-state view exposed to the UI surface.
type RoomSnapshot struct {
	RoomID  string         `json:"room_id"`
	Name    string         `json:"name"`
	Members []MemberStatus `json:"members"`
}

// Snapshot assembles the room-state view: every member with their role and
// current ban/mute status. Expired bans do not count as banned.
func (s *Service) Snapshot(ctx context.Context, roomID string) (RoomSnapshot, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}
	members, err := s.store.Members(ctx, roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}
	bans, err := s.store.ListBans(ctx, roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}
	mutes, err := s.store.ListMutes(ctx, roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}

	nowMS := s.now().UnixMilli()
	banned := make(map[string]bool, len(bans))
	for _, b := range bans {
		if b.Until > nowMS {
			banned[b.UID] = true
		}
	}
	muted := make(map[string]bool, len(mutes))
	for _, m := range mutes {
		muted[m.UID] = true
	}

	snap := RoomSnapshot{RoomID: room.ID, Name: room.Name}
	for _, m := range members {
		snap.Members = append(snap.Members, MemberStatus{
			UID:      m.UID,
			Username: m.Username,
			Role:     m.Role,
			Banned:   banned[m.UID],
			Muted:    muted[m.UID],
		})
	}
	return snap, nil
}

// rejectIfOwner enforces the invariant that an owner can never appear in
// the banned or muted sets.
func (s *Service) rejectIfOwner(ctx context.Context, roomID, uid string) error {
	m, isMember, err := s.store.GetMember(ctx, roomID, uid)
	if err != nil {
		return err
	}
	if isMember && m.Role == store.RoleOwner {
		return ErrCannotDemoteOwner
	}
	return nil
}

// systemNotice persists a SYSTEM-authored message and fans it out. System
// messages bypass the gate entirely.
func (s *Service) systemNotice(ctx context.Context, roomID, text string) {
	row := store.MessageRow{
		RoomID:    roomID,
		UID:       "",
		Username:  protocol.SystemUsername,
		Body:      text,
		System:    true,
		CreatedAt: s.now().UnixMilli(),
	}
	id, err := s.store.InsertMessage(ctx, row)
	if err != nil {
		log.Error().Str("component", "moderation").Str("room", roomID).Err(err).Msg("persist system notice")
		return
	}
	if s.notifier != nil {
		s.notifier.Publish(protocol.ChatEntry{
			ID:        id,
			RoomID:    roomID,
			Username:  protocol.SystemUsername,
			Body:      text,
			CreatedAt: row.CreatedAt,
			System:    true,
		})
	}
}

func (s *Service) audit(ctx context.Context, roomID string, actor identity.Identity, action, target, details string) {
	err := s.store.InsertAuditLog(ctx, store.AuditEntry{
		RoomID:    roomID,
		ActorUID:  actor.UID,
		ActorName: actor.Username,
		Action:    action,
		Target:    target,
		Details:   details,
	})
	if err != nil {
		log.Error().Str("component", "moderation").Str("action", action).Err(err).Msg("write audit entry")
	}
}
