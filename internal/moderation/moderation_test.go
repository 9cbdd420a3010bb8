package moderation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"quickchat/server/internal/identity"
	"quickchat/server/internal/protocol"
	"quickchat/server/internal/store"
)

// captureNotifier records published system notices for assertions.
type captureNotifier struct {
	entries []protocol.ChatEntry
}

func (c *captureNotifier) Publish(e protocol.ChatEntry) {
	c.entries = append(c.entries, e)
}

// newTestService builds a service over a throwaway database with a room and
// a few members: owner o1, member u2 ("bob"), actor a1 ("alice").
func newTestService(t *testing.T) (*Service, *store.Store, *captureNotifier) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.CreateRoom(ctx, "r1", "General"); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertMember(ctx, "r1", "o1", "olivia", store.RoleOwner); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertMember(ctx, "r1", "u2", "bob", store.RoleMember); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertMember(ctx, "r1", "a1", "alice", store.RoleModerator); err != nil {
		t.Fatal(err)
	}

	notifier := &captureNotifier{}
	return NewService(st, notifier), st, notifier
}

func actor() identity.Identity {
	return identity.Identity{UID: "a1", Username: "alice", PseudoIP: "IP-actor"}
}

// TestBanCapturesTargetFingerprint verifies the ban's secondary key comes
// from the target's own message history, never from the acting moderator.
func TestBanCapturesTargetFingerprint(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if _, err := st.InsertMessage(ctx, store.MessageRow{
		RoomID: "r1", UID: "u2", Username: "bob", Body: "hi",
		PseudoIP: "IP-target", CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	b, err := svc.Ban(ctx, "r1", actor(), "u2", time.Hour, "spam")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if b.PseudoIP != "IP-target" {
		t.Errorf("ban captured fingerprint %q, want the target's IP-target", b.PseudoIP)
	}
}

// TestBanWithoutHistoryIsUIDOnly verifies a target with no message history
// gets a uid-only ban (empty secondary key).
func TestBanWithoutHistoryIsUIDOnly(t *testing.T) {
	svc, _, _ := newTestService(t)

	b, err := svc.Ban(context.Background(), "r1", actor(), "u2", time.Hour, "spam")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if b.PseudoIP != "" {
		t.Errorf("expected empty secondary key, got %q", b.PseudoIP)
	}
}

// TestBanRejectsOwner verifies owners can never be banned and the banned
// set is unchanged by the attempt.
func TestBanRejectsOwner(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ban(ctx, "r1", actor(), "o1", time.Hour, "grudge")
	if !errors.Is(err, ErrCannotDemoteOwner) {
		t.Fatalf("expected ErrCannotDemoteOwner, got %v", err)
	}

	bans, err := st.ListBans(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bans) != 0 {
		t.Errorf("ban set mutated by rejected attempt: %+v", bans)
	}
}

// TestBanRequiresPositiveDuration verifies the until > issuedAt invariant.
func TestBanRequiresPositiveDuration(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, d := range []time.Duration{0, -time.Minute} {
		if _, err := svc.Ban(context.Background(), "r1", actor(), "u2", d, "x"); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("duration %v: expected ErrInvalidDuration, got %v", d, err)
		}
	}
}

// TestBanEmitsSystemNotice verifies a successful ban is broadcast as a
// persisted SYSTEM message with the expected wording.
func TestBanEmitsSystemNotice(t *testing.T) {
	svc, st, notifier := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Ban(ctx, "r1", actor(), "u2", time.Hour, "spam"); err != nil {
		t.Fatal(err)
	}

	want := fmt.Sprintf("User %q was banned by %q", "u2", protocol.SystemUsername)
	if len(notifier.entries) != 1 {
		t.Fatalf("expected 1 published notice, got %d", len(notifier.entries))
	}
	got := notifier.entries[0]
	if !got.System || got.Username != protocol.SystemUsername || got.Body != want {
		t.Errorf("unexpected notice: %+v", got)
	}

	msgs, err := st.RecentMessages(ctx, "r1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].System || msgs[0].Body != want {
		t.Errorf("notice not persisted as a system message: %+v", msgs)
	}
}

// TestUnbanIsIdempotent verifies unbanning a user with no active ban is a
// quiet no-op.
func TestUnbanIsIdempotent(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	n, err := svc.Unban(ctx, "r1", actor(), "u2")
	if err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 removed, got %d", n)
	}
	if len(notifier.entries) != 0 {
		t.Errorf("no-op unban published a notice: %+v", notifier.entries)
	}

	if _, err := svc.Ban(ctx, "r1", actor(), "u2", time.Hour, "spam"); err != nil {
		t.Fatal(err)
	}
	n, err = svc.Unban(ctx, "r1", actor(), "u2")
	if err != nil || n != 1 {
		t.Errorf("expected 1 removed, got n=%d err=%v", n, err)
	}

	if _, found, _ := svc.MatchBan(ctx, "r1", "u2", ""); found {
		t.Error("still banned after unban")
	}
}

// TestMuteUnmute verifies mute idempotency, uid-only keying, and the owner
// guard.
func TestMuteUnmute(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Mute(ctx, "r1", actor(), "u2", "noise"); err != nil {
			t.Fatalf("Mute: %v", err)
		}
	}
	if muted, _ := svc.IsMuted(ctx, "r1", "u2"); !muted {
		t.Error("expected muted")
	}

	if err := svc.Mute(ctx, "r1", actor(), "o1", "noise"); !errors.Is(err, ErrCannotDemoteOwner) {
		t.Errorf("muting an owner: expected ErrCannotDemoteOwner, got %v", err)
	}

	if err := svc.Unmute(ctx, "r1", actor(), "u2"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Unmute(ctx, "r1", actor(), "u2"); err != nil {
		t.Fatalf("second unmute errored: %v", err)
	}
	if muted, _ := svc.IsMuted(ctx, "r1", "u2"); muted {
		t.Error("expected unmuted")
	}
}

// TestModeratorRoleChanges verifies promotion/demotion invariants:
// moderators must already be members, and owners are untouchable.
func TestModeratorRoleChanges(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.AssignModerator(ctx, "r1", actor(), "stranger"); !errors.Is(err, ErrNotAMember) {
		t.Errorf("expected ErrNotAMember, got %v", err)
	}

	if err := svc.AssignModerator(ctx, "r1", actor(), "u2"); err != nil {
		t.Fatalf("AssignModerator: %v", err)
	}
	m, _, _ := st.GetMember(ctx, "r1", "u2")
	if m.Role != store.RoleModerator {
		t.Errorf("expected moderator, got %q", m.Role)
	}
	// Repeat assignment: set semantics, still exactly moderator.
	if err := svc.AssignModerator(ctx, "r1", actor(), "u2"); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveModerator(ctx, "r1", actor(), "u2"); err != nil {
		t.Fatal(err)
	}
	m, _, _ = st.GetMember(ctx, "r1", "u2")
	if m.Role != store.RoleMember {
		t.Errorf("expected member after demotion, got %q", m.Role)
	}

	if err := svc.RemoveModerator(ctx, "r1", actor(), "o1"); !errors.Is(err, ErrCannotDemoteOwner) {
		t.Errorf("demoting owner: expected ErrCannotDemoteOwner, got %v", err)
	}
	if err := svc.AssignModerator(ctx, "r1", actor(), "o1"); !errors.Is(err, ErrCannotDemoteOwner) {
		t.Errorf("reassigning owner: expected ErrCannotDemoteOwner, got %v", err)
	}
	m, _, _ = st.GetMember(ctx, "r1", "o1")
	if m.Role != store.RoleOwner {
		t.Errorf("owner role changed to %q", m.Role)
	}
}

// TestSnapshot verifies the room-state view and that expired bans do not
// count as banned.
func TestSnapshot(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Ban(ctx, "r1", actor(), "u2", time.Hour, "spam"); err != nil {
		t.Fatal(err)
	}
	// a1 is a moderator, not an owner, so muting is allowed.
	if err := svc.Mute(ctx, "r1", actor(), "a1", "self-test"); err != nil {
		t.Fatal(err)
	}
	// An already-expired ban for the owner-free member set.
	if _, err := st.InsertBan(ctx, store.Ban{
		RoomID: "r1", UID: "a1",
		IssuedAt: time.Now().Add(-2 * time.Hour).UnixMilli(),
		Until:    time.Now().Add(-time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Snapshot(ctx, "r1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.RoomID != "r1" || snap.Name != "General" {
		t.Errorf("unexpected room header: %+v", snap)
	}

	byUID := make(map[string]MemberStatus)
	for _, m := range snap.Members {
		byUID[m.UID] = m
	}
	if !byUID["u2"].Banned {
		t.Error("u2 should show banned")
	}
	if byUID["a1"].Banned {
		t.Error("expired ban flagged a1 as banned")
	}
	if !byUID["a1"].Muted {
		t.Error("a1 should show muted")
	}
	if byUID["o1"].Role != store.RoleOwner || byUID["o1"].Banned {
		t.Errorf("owner row wrong: %+v", byUID["o1"])
	}

	if _, err := svc.Snapshot(ctx, "missing"); !errors.Is(err, store.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

// TestAuditTrail verifies moderation actions leave audit entries.
func TestAuditTrail(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Ban(ctx, "r1", actor(), "u2", time.Hour, "spam"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Mute(ctx, "r1", actor(), "u2", "noise"); err != nil {
		t.Fatal(err)
	}

	entries, err := st.GetAuditLog(ctx, "r1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	// Most recent first.
	if entries[0].Action != "mute" || entries[1].Action != "ban" {
		t.Errorf("unexpected actions: %q, %q", entries[0].Action, entries[1].Action)
	}
	if entries[1].ActorUID != "a1" || entries[1].Target != "u2" {
		t.Errorf("unexpected ban entry: %+v", entries[1])
	}
}
