// Package store provides persistent chat and moderation state backed by an
// embedded SQLite database. It owns the database lifecycle and exposes a
// minimal API used by the rest of the server.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL/DML statements that bring the
// schema up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — rooms
	`CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — membership and roles
	`CREATE TABLE IF NOT EXISTS room_members (
		room_id  TEXT NOT NULL,
		uid      TEXT NOT NULL,
		username TEXT NOT NULL,
		role     TEXT NOT NULL DEFAULT 'member',
		PRIMARY KEY (room_id, uid)
	)`,
	// v3 — per-user per-room privileges
	`CREATE TABLE IF NOT EXISTS privileges (
		room_id   TEXT NOT NULL,
		uid       TEXT NOT NULL,
		privilege TEXT NOT NULL,
		PRIMARY KEY (room_id, uid, privilege)
	)`,
	// v4 — bans (uid plus optional pseudo-IP secondary key)
	`CREATE TABLE IF NOT EXISTS bans (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id   TEXT NOT NULL,
		uid       TEXT NOT NULL,
		pseudo_ip TEXT NOT NULL DEFAULT '',
		reason    TEXT NOT NULL DEFAULT '',
		banned_by TEXT NOT NULL DEFAULT '',
		issued_at INTEGER NOT NULL,
		until     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bans_room_uid ON bans(room_id, uid)`,
	// v6 — mutes (indefinite until explicit unmute)
	`CREATE TABLE IF NOT EXISTS mutes (
		room_id  TEXT NOT NULL,
		uid      TEXT NOT NULL,
		reason   TEXT NOT NULL DEFAULT '',
		muted_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (room_id, uid)
	)`,
	// v7 — messages; pseudo_ip is recorded so a later ban can capture the
	// target's own device fingerprint from their message history
	`CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id    TEXT NOT NULL,
		uid        TEXT NOT NULL,
		username   TEXT NOT NULL,
		body       TEXT NOT NULL,
		pseudo_ip  TEXT NOT NULL DEFAULT '',
		system     INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at, id)`,
	// v9 — slow-mode bookkeeping, one row per user per room
	`CREATE TABLE IF NOT EXISTS message_meta (
		room_id         TEXT NOT NULL,
		uid             TEXT NOT NULL,
		last_message_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, uid)
	)`,
	// v10 — audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id    TEXT NOT NULL,
		actor_uid  TEXT NOT NULL,
		actor_name TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		details    TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	// v12 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// ErrRoomNotFound is returned when a room id does not exist.
var ErrRoomNotFound = errors.New("room not found")

// Roles stored in room_members.role.
const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// Store wraps a SQLite database and exposes chat-state operations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	// The busy timeout rides on the DSN so every pooled connection gets it,
	// not just the first.
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow multiple read connections but serialise writes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("component", "store").Str("path", path).Msg("sqlite store opened")
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Debug().Str("component", "store").Int("version", v).Msg("applied migration")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// Room is one chat room row.
type Room struct {
	ID        string
	Name      string
	CreatedAt int64
}

// CreateRoom inserts a room. Creating an existing id is an error.
func (s *Store) CreateRoom(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms(id, name) VALUES(?, ?)`, id, name,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom returns the room with the given id, or ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, id string) (Room, error) {
	var r Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("query room: %w", err)
	}
	return r, nil
}

// ListRooms returns all rooms ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM rooms ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Membership & roles
// ---------------------------------------------------------------------------

// Member is one user's membership row in a room.
type Member struct {
	UID      string
	Username string
	Role     string
}

// UpsertMember adds a user to a room or updates their username/role.
func (s *Store) UpsertMember(ctx context.Context, roomID, uid, username, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_members(room_id, uid, username, role) VALUES(?,?,?,?)
		 ON CONFLICT(room_id, uid) DO UPDATE SET username = excluded.username, role = excluded.role`,
		roomID, uid, username, role,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// EnsureMember adds a user to a room as a plain member, or refreshes their
// username if they already belong. An existing role is never downgraded by
// a rejoin.
func (s *Store) EnsureMember(ctx context.Context, roomID, uid, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_members(room_id, uid, username, role) VALUES(?,?,?,?)
		 ON CONFLICT(room_id, uid) DO UPDATE SET username = excluded.username`,
		roomID, uid, username, RoleMember,
	)
	if err != nil {
		return fmt.Errorf("ensure member: %w", err)
	}
	return nil
}

// SetRole updates one member's role. Set semantics: repeated assignment of
// the same role is a no-op, never a duplicate.
func (s *Store) SetRole(ctx context.Context, roomID, uid, role string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE room_members SET role = ? WHERE room_id = ? AND uid = ?`,
		role, roomID, uid,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

// GetMember returns a member row. The second return value is false when the
// user is not a member of the room.
func (s *Store) GetMember(ctx context.Context, roomID, uid string) (Member, bool, error) {
	var m Member
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, username, role FROM room_members WHERE room_id = ? AND uid = ?`,
		roomID, uid,
	).Scan(&m.UID, &m.Username, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, false, nil
	}
	if err != nil {
		return Member{}, false, fmt.Errorf("query member: %w", err)
	}
	return m, true, nil
}

// Members returns all members of a room ordered by uid.
func (s *Store) Members(ctx context.Context, roomID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, username, role FROM room_members WHERE room_id = ? ORDER BY uid ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UID, &m.Username, &m.Role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResolveUsername maps a display name to a uid within one room. The second
// return value is false when no member carries that name.
func (s *Store) ResolveUsername(ctx context.Context, roomID, username string) (string, bool, error) {
	var uid string
	err := s.db.QueryRowContext(ctx,
		`SELECT uid FROM room_members WHERE room_id = ? AND username = ? LIMIT 1`,
		roomID, username,
	).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve username: %w", err)
	}
	return uid, true, nil
}

// ---------------------------------------------------------------------------
// Privileges
// ---------------------------------------------------------------------------

// GrantPrivilege grants a named capability to a user in a room (idempotent).
func (s *Store) GrantPrivilege(ctx context.Context, roomID, uid, privilege string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO privileges(room_id, uid, privilege) VALUES(?,?,?)`,
		roomID, uid, privilege,
	)
	if err != nil {
		return fmt.Errorf("grant privilege: %w", err)
	}
	return nil
}

// RevokePrivilege removes a capability (no-op if absent).
func (s *Store) RevokePrivilege(ctx context.Context, roomID, uid, privilege string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM privileges WHERE room_id = ? AND uid = ? AND privilege = ?`,
		roomID, uid, privilege,
	)
	if err != nil {
		return fmt.Errorf("revoke privilege: %w", err)
	}
	return nil
}

// HasPrivilege reports whether a user holds a capability in a room.
func (s *Store) HasPrivilege(ctx context.Context, roomID, uid, privilege string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM privileges WHERE room_id = ? AND uid = ? AND privilege = ? LIMIT 1`,
		roomID, uid, privilege,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query privilege: %w", err)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Bans
// ---------------------------------------------------------------------------

// Ban is one row in the bans table. Times are unix milliseconds.
type Ban struct {
	ID       int64
	RoomID   string
	UID      string
	PseudoIP string
	Reason   string
	BannedBy string
	IssuedAt int64
	Until    int64
}

// InsertBan appends a ban row and returns its id. Rows are only ever
// appended or deleted — two moderators banning concurrently cannot lose
// each other's writes.
func (s *Store) InsertBan(ctx context.Context, b Ban) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bans(room_id, uid, pseudo_ip, reason, banned_by, issued_at, until) VALUES(?,?,?,?,?,?,?)`,
		b.RoomID, b.UID, b.PseudoIP, b.Reason, b.BannedBy, b.IssuedAt, b.Until,
	)
	if err != nil {
		return 0, fmt.Errorf("insert ban: %w", err)
	}
	return res.LastInsertId()
}

// DeleteBansForUser removes every ban row matching uid in a room and
// returns the number removed. Removing zero rows is not an error.
func (s *Store) DeleteBansForUser(ctx context.Context, roomID, uid string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE room_id = ? AND uid = ?`, roomID, uid,
	)
	if err != nil {
		return 0, fmt.Errorf("delete bans: %w", err)
	}
	return res.RowsAffected()
}

// MatchBan returns the first unexpired ban whose uid or pseudo-IP matches.
// Expired rows are ignored but kept for inspection; see PurgeExpiredBans.
func (s *Store) MatchBan(ctx context.Context, roomID, uid, pseudoIP string, now time.Time) (Ban, bool, error) {
	var b Ban
	err := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, uid, pseudo_ip, reason, banned_by, issued_at, until
		 FROM bans
		 WHERE room_id = ? AND (uid = ? OR (pseudo_ip != '' AND pseudo_ip = ?)) AND until > ?
		 ORDER BY id ASC LIMIT 1`,
		roomID, uid, pseudoIP, now.UnixMilli(),
	).Scan(&b.ID, &b.RoomID, &b.UID, &b.PseudoIP, &b.Reason, &b.BannedBy, &b.IssuedAt, &b.Until)
	if errors.Is(err, sql.ErrNoRows) {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, fmt.Errorf("match ban: %w", err)
	}
	return b, true, nil
}

// ListBans returns all bans in a room, most recent first.
func (s *Store) ListBans(ctx context.Context, roomID string) ([]Ban, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, uid, pseudo_ip, reason, banned_by, issued_at, until
		 FROM bans WHERE room_id = ? ORDER BY id DESC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var out []Ban
	for rows.Next() {
		var b Ban
		if err := rows.Scan(&b.ID, &b.RoomID, &b.UID, &b.PseudoIP, &b.Reason, &b.BannedBy, &b.IssuedAt, &b.Until); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PurgeExpiredBans removes bans whose until has passed and returns the
// number removed.
func (s *Store) PurgeExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE until <= ?`, now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge bans: %w", err)
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Mutes
// ---------------------------------------------------------------------------

// Mute is one row in the mutes table. No expiry: a mute lasts until
// explicit unmute.
type Mute struct {
	RoomID  string
	UID     string
	Reason  string
	MutedBy string
}

// InsertMute records a mute (idempotent — muting a muted user is a no-op).
func (s *Store) InsertMute(ctx context.Context, m Mute) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mutes(room_id, uid, reason, muted_by) VALUES(?,?,?,?)`,
		m.RoomID, m.UID, m.Reason, m.MutedBy,
	)
	if err != nil {
		return fmt.Errorf("insert mute: %w", err)
	}
	return nil
}

// DeleteMute removes a mute (no-op if absent).
func (s *Store) DeleteMute(ctx context.Context, roomID, uid string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mutes WHERE room_id = ? AND uid = ?`, roomID, uid,
	)
	if err != nil {
		return fmt.Errorf("delete mute: %w", err)
	}
	return nil
}

// IsMuted reports whether uid is muted in a room.
func (s *Store) IsMuted(ctx context.Context, roomID, uid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM mutes WHERE room_id = ? AND uid = ? LIMIT 1`, roomID, uid,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query mute: %w", err)
	}
	return true, nil
}

// ListMutes returns all mutes in a room ordered by uid.
func (s *Store) ListMutes(ctx context.Context, roomID string) ([]Mute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, uid, reason, muted_by FROM mutes WHERE room_id = ? ORDER BY uid ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query mutes: %w", err)
	}
	defer rows.Close()

	var out []Mute
	for rows.Next() {
		var m Mute
		if err := rows.Scan(&m.RoomID, &m.UID, &m.Reason, &m.MutedBy); err != nil {
			return nil, fmt.Errorf("scan mute: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// MessageRow is a persisted chat message. CreatedAt is unix milliseconds.
type MessageRow struct {
	ID        int64
	RoomID    string
	UID       string
	Username  string
	Body      string
	PseudoIP  string
	System    bool
	CreatedAt int64
}

// InsertMessage persists a chat message and returns the assigned id.
func (s *Store) InsertMessage(ctx context.Context, m MessageRow) (int64, error) {
	sys := 0
	if m.System {
		sys = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(room_id, uid, username, body, pseudo_ip, system, created_at) VALUES(?,?,?,?,?,?,?)`,
		m.RoomID, m.UID, m.Username, m.Body, m.PseudoIP, sys, m.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// RecentMessages returns the most recent limit messages for a room,
// ordered oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, uid, username, body, pseudo_ip, system, created_at
		 FROM messages WHERE room_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []MessageRow
	for rows.Next() {
		var m MessageRow
		var sys int
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UID, &m.Username, &m.Body, &m.PseudoIP, &sys, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.System = sys != 0
		msgs = append(msgs, m)
	}
	// Reverse to oldest-first order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}

// LastPseudoIP returns the device fingerprint recorded on uid's most recent
// message in a room. The second return value is false when the user has no
// message history with a fingerprint.
func (s *Store) LastPseudoIP(ctx context.Context, roomID, uid string) (string, bool, error) {
	var ip string
	err := s.db.QueryRowContext(ctx,
		`SELECT pseudo_ip FROM messages
		 WHERE room_id = ? AND uid = ? AND pseudo_ip != ''
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		roomID, uid,
	).Scan(&ip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last pseudo-ip: %w", err)
	}
	return ip, true, nil
}

// ---------------------------------------------------------------------------
// Slow mode
// ---------------------------------------------------------------------------

// TryAcquireSlowMode attempts to claim a send slot for uid in a room. The
// read-check-write runs as one conditional upsert, so it is atomic at the
// statement level: of any number of concurrent attempts inside one window,
// exactly one updates the row. Returns (0, true, nil) on success, or the
// remaining wait on rejection.
func (s *Store) TryAcquireSlowMode(ctx context.Context, roomID, uid string, window time.Duration, now time.Time) (time.Duration, bool, error) {
	nowMS := now.UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO message_meta(room_id, uid, last_message_at) VALUES(?,?,?)
		 ON CONFLICT(room_id, uid) DO UPDATE SET last_message_at = excluded.last_message_at
		 WHERE excluded.last_message_at - message_meta.last_message_at >= ?`,
		roomID, uid, nowMS, window.Milliseconds(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("acquire slow mode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("acquire slow mode: %w", err)
	}
	if n > 0 {
		return 0, true, nil
	}

	var last int64
	err = s.db.QueryRowContext(ctx,
		`SELECT last_message_at FROM message_meta WHERE room_id = ? AND uid = ?`,
		roomID, uid,
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("read slow mode: %w", err)
	}
	retry := window - time.Duration(nowMS-last)*time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return retry, false, nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// AuditEntry represents one row in the audit_log table.
type AuditEntry struct {
	ID        int64
	RoomID    string
	ActorUID  string
	ActorName string
	Action    string
	Target    string
	Details   string
	CreatedAt int64
}

// InsertAuditLog records a moderation action. If the table exceeds 10,000
// rows the oldest entries are purged.
func (s *Store) InsertAuditLog(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(room_id, actor_uid, actor_name, action, target, details) VALUES(?,?,?,?,?,?)`,
		e.RoomID, e.ActorUID, e.ActorName, e.Action, e.Target, e.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE id NOT IN (SELECT id FROM audit_log ORDER BY id DESC LIMIT 10000)`,
	)
	return err
}

// GetAuditLog returns audit entries for a room, most recent first, with an
// optional action filter. Pass action="" for all actions.
func (s *Store) GetAuditLog(ctx context.Context, roomID, action string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if action != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, room_id, actor_uid, actor_name, action, target, details, created_at
			 FROM audit_log WHERE room_id = ? AND action = ? ORDER BY id DESC LIMIT ?`,
			roomID, action, limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, room_id, actor_uid, actor_name, action, target, details, created_at
			 FROM audit_log WHERE room_id = ? ORDER BY id DESC LIMIT ?`,
			roomID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.RoomID, &e.ActorUID, &e.ActorName, &e.Action, &e.Target, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
