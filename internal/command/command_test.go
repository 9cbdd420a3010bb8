package command

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quickchat/server/internal/identity"
	"quickchat/server/internal/moderation"
	"quickchat/server/internal/store"
)

// newTestInterpreter wires an interpreter over a throwaway database with a
// room, an owner o1, a member u2 ("bob"), and a privileged moderator a1.
func newTestInterpreter(t *testing.T) (*Interpreter, *store.Store) {
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
	for _, p := range []string{moderation.PrivilegeBan, moderation.PrivilegeMute} {
		if err := st.GrantPrivilege(ctx, "r1", "a1", p); err != nil {
			t.Fatal(err)
		}
	}

	return NewInterpreter(moderation.NewService(st, nil)), st
}

func alice() identity.Identity {
	return identity.Identity{UID: "a1", Username: "alice"}
}

func asUsage(t *testing.T, err error, kind UsageErrorKind) *UsageError {
	t.Helper()
	var ue *UsageError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UsageError, got %v", err)
	}
	if ue.Kind != kind {
		t.Fatalf("expected kind %q, got %q (%s)", kind, ue.Kind, ue.Detail)
	}
	return ue
}

// TestParseDuration pins the suffix grammar: d/h/m units, bare numbers are
// seconds, and malformed or non-positive input is rejected.
func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"2d", 48 * time.Hour, true},
		{"30m", 30 * time.Minute, true},
		{"12h", 12 * time.Hour, true},
		{"45", 45 * time.Second, true},
		{"1d", 24 * time.Hour, true},
		{"0", 0, false},
		{"-5m", 0, false},
		{"soon", 0, false},
		{"", 0, false},
		{"m", 0, false},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		if c.ok {
			if err != nil {
				t.Errorf("ParseDuration(%q): %v", c.in, err)
			} else if got != c.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", c.in, got, c.want)
			}
		} else if err == nil {
			t.Errorf("ParseDuration(%q) accepted, want error", c.in)
		}
	}
}

// TestPlainTextPassesThrough verifies non-slash input is not handled and
// continues through the message pipeline.
func TestPlainTextPassesThrough(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Interpret(context.Background(), "r1", "hello everyone", alice())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if res.Handled {
		t.Error("plain text was treated as a command")
	}
}

// TestUnknownCommand verifies an unrecognized slash word is handled with a
// usage error and never reaches the room.
func TestUnknownCommand(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Interpret(context.Background(), "r1", "/dance", alice())
	if !res.Handled {
		t.Error("slash input must always be handled")
	}
	asUsage(t, err, UnknownCommand)
}

// TestBadArityMutatesNothing verifies an arity failure reports usage and
// leaves moderation state untouched.
func TestBadArityMutatesNothing(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	res, err := in.Interpret(ctx, "r1", "/ban u2", alice())
	if !res.Handled {
		t.Error("expected handled")
	}
	ue := asUsage(t, err, BadArity)
	if !strings.Contains(ue.Detail, "/ban <uid> <duration> <reason...>") {
		t.Errorf("usage string missing from detail: %q", ue.Detail)
	}

	bans, err := st.ListBans(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bans) != 0 {
		t.Errorf("arity failure created bans: %+v", bans)
	}
}

// TestMissingPrivilege verifies unprivileged actors are rejected before any
// argument parsing happens.
func TestMissingPrivilege(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()
	bob := identity.Identity{UID: "u2", Username: "bob"}

	_, err := in.Interpret(ctx, "r1", "/ban o1 1h payback", bob)
	asUsage(t, err, MissingPrivilege)

	if muted, _ := st.IsMuted(ctx, "r1", "a1"); muted {
		t.Error("state mutated by unprivileged attempt")
	}
}

// TestBanCommand verifies the full /ban path: duration parsing, the ban
// entry's window, and the recorded reason.
func TestBanCommand(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	res, err := in.Interpret(ctx, "r1", "/ban u2 1h spamming the room", alice())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !res.Handled {
		t.Error("expected handled")
	}

	bans, err := st.ListBans(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bans) != 1 {
		t.Fatalf("expected 1 ban, got %d", len(bans))
	}
	b := bans[0]
	if b.UID != "u2" || b.BannedBy != "a1" || b.Reason != "spamming the room" {
		t.Errorf("unexpected ban row: %+v", b)
	}
	wantUntil := b.IssuedAt + time.Hour.Milliseconds()
	if b.Until != wantUntil {
		t.Errorf("until = %d, want issued_at + 1h = %d", b.Until, wantUntil)
	}
	if b.IssuedAt < before {
		t.Errorf("issued_at %d predates the command", b.IssuedAt)
	}
}

// TestBanInvalidDuration verifies a malformed duration is a usage error and
// bans nobody.
func TestBanInvalidDuration(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	_, err := in.Interpret(ctx, "r1", "/ban u2 soon spam", alice())
	asUsage(t, err, InvalidDuration)

	bans, _ := st.ListBans(ctx, "r1")
	if len(bans) != 0 {
		t.Errorf("invalid duration created bans: %+v", bans)
	}
}

// TestBanOwnerRejected verifies banning the room owner surfaces as a usage
// error rather than a fault.
func TestBanOwnerRejected(t *testing.T) {
	in, _ := newTestInterpreter(t)

	_, err := in.Interpret(context.Background(), "r1", "/ban o1 1h coup", alice())
	ue := asUsage(t, err, MissingPrivilege)
	if !strings.Contains(ue.Detail, "owner") {
		t.Errorf("detail should mention owners: %q", ue.Detail)
	}
}

// TestUnbanCommand verifies /unban lifts an existing ban and is quiet when
// there is none.
func TestUnbanCommand(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	if _, err := in.Interpret(ctx, "r1", "/ban u2 1h spam", alice()); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Interpret(ctx, "r1", "/unban u2", alice()); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, found, _ := st.MatchBan(ctx, "r1", "u2", "", time.Now()); found {
		t.Error("still banned after /unban")
	}

	// No active ban: still not an error.
	if _, err := in.Interpret(ctx, "r1", "/unban u2", alice()); err != nil {
		t.Errorf("idempotent unban errored: %v", err)
	}
}

// TestMuteByUsername verifies /mute and /unmute address the target by
// display name, resolved within the room.
func TestMuteByUsername(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	if _, err := in.Interpret(ctx, "r1", "/mute bob flooding", alice()); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if muted, _ := st.IsMuted(ctx, "r1", "u2"); !muted {
		t.Error("expected u2 muted")
	}

	if _, err := in.Interpret(ctx, "r1", "/unmute bob", alice()); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if muted, _ := st.IsMuted(ctx, "r1", "u2"); muted {
		t.Error("expected u2 unmuted")
	}

	_, err := in.Interpret(ctx, "r1", "/mute nobody spam", alice())
	asUsage(t, err, UserNotFound)
}

// TestUIDCommand verifies /uid replies privately with the target's uid.
func TestUIDCommand(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Interpret(context.Background(), "r1", "/uid bob", alice())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !res.Handled || res.Reply != "bob has uid u2" {
		t.Errorf("unexpected result: %+v", res)
	}

	_, err = in.Interpret(context.Background(), "r1", "/uid ghost", alice())
	asUsage(t, err, UserNotFound)
}

// TestCommandNameCaseInsensitive verifies "/BAN" dispatches like "/ban".
func TestCommandNameCaseInsensitive(t *testing.T) {
	in, st := newTestInterpreter(t)
	ctx := context.Background()

	if _, err := in.Interpret(ctx, "r1", "/BAN u2 30m caps", alice()); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if _, found, _ := st.MatchBan(ctx, "r1", "u2", "", time.Now()); !found {
		t.Error("uppercase command did not ban")
	}
}
