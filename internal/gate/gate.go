// Package gate is the single choke-point all outgoing chat text passes
// through. It enforces, in order: authentication, room existence, ban and
// mute state, slash-command interception, content filtering, and slow mode,
// before handing accepted text to persistence and the live feed.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"quickchat/server/internal/command"
	"quickchat/server/internal/filter"
	"quickchat/server/internal/identity"
	"quickchat/server/internal/moderation"
	"quickchat/server/internal/protocol"
	"quickchat/server/internal/ratelimit"
	"quickchat/server/internal/store"
)

// Status is the overall outcome of a submit.
type Status string

const (
	// AcceptedPersisted: the text was stored as a chat message.
	AcceptedPersisted Status = "accepted_persisted"
	// AcceptedNoPersist: a command was executed; nothing was appended to
	// the chat log as a user message.
	AcceptedNoPersist Status = "accepted_no_persist"
	// Rejected: the text was refused; Reason says why.
	Rejected Status = "rejected"
)

// Reason classifies a rejection. All reasons are expected, user-facing
// outcomes — never faults.
type Reason string

const (
	NotLoggedIn       Reason = "not_logged_in"
	RoomNotFound      Reason = "room_not_found"
	Banned            Reason = "banned"
	Muted             Reason = "muted"
	ProhibitedContent Reason = "prohibited_content"
	RateLimited       Reason = "rate_limited"
)

// Result reports the outcome of one submit.
type Result struct {
	Status     Status
	Reason     Reason              // set when Status == Rejected
	Ban        *store.Ban          // Banned: the matching entry, so the UI can render the ban notice
	RetryAfter time.Duration       // RateLimited: remaining slow-mode wait
	Notice     string              // private caller-only text (usage errors, /uid replies)
	Entry      *protocol.ChatEntry // AcceptedPersisted: the stored message
}

// Gate wires the pipeline dependencies together.
type Gate struct {
	identity *identity.Registry
	store    *store.Store
	mod      *moderation.Service
	commands *command.Interpreter
	filter   *filter.Filter
	limiter  ratelimit.Limiter
	notifier moderation.Notifier
	now      func() time.Time
}

// New builds a gate. notifier may be nil when no live feed is attached.
func New(reg *identity.Registry, st *store.Store, mod *moderation.Service, interp *command.Interpreter, fl *filter.Filter, limiter ratelimit.Limiter, notifier moderation.Notifier) *Gate {
	return &Gate{
		identity: reg,
		store:    st,
		mod:      mod,
		commands: interp,
		filter:   fl,
		limiter:  limiter,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit runs text through the pipeline on behalf of the session identified
// by token. Checks short-circuit in a fixed order; the first match wins.
// The returned error is reserved for storage faults — every user-facing
// outcome arrives in the Result.
func (g *Gate) Submit(ctx context.Context, token, roomID, text string) (Result, error) {
	actor, err := g.identity.Resolve(token)
	if err != nil {
		return Result{Status: Rejected, Reason: NotLoggedIn}, nil
	}

	if _, err := g.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return Result{Status: Rejected, Reason: RoomNotFound}, nil
		}
		return Result{}, err
	}

	// Ban matching covers both keys: the account and the device. A banned
	// user is rejected no matter what they typed, commands included.
	if ban, found, err := g.mod.MatchBan(ctx, roomID, actor.UID, actor.PseudoIP); err != nil {
		return Result{}, err
	} else if found {
		log.Debug().Str("component", "gate").Str("room", roomID).Str("uid", actor.UID).Msg("submit rejected: banned")
		return Result{Status: Rejected, Reason: Banned, Ban: &ban}, nil
	}

	if muted, err := g.mod.IsMuted(ctx, roomID, actor.UID); err != nil {
		return Result{}, err
	} else if muted {
		return Result{Status: Rejected, Reason: Muted}, nil
	}

	cmd, err := g.commands.Interpret(ctx, roomID, text, actor)
	if cmd.Handled {
		var usage *command.UsageError
		if errors.As(err, &usage) {
			return Result{Status: AcceptedNoPersist, Notice: usage.Error()}, nil
		}
		if err != nil {
			return Result{}, err
		}
		return Result{Status: AcceptedNoPersist, Notice: cmd.Reply}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if g.filter.Match(text) {
		return Result{Status: Rejected, Reason: ProhibitedContent}, nil
	}

	if err := g.limiter.TryAcquire(ctx, roomID, actor.UID); err != nil {
		var tooSoon *ratelimit.TooSoonError
		if errors.As(err, &tooSoon) {
			return Result{Status: Rejected, Reason: RateLimited, RetryAfter: tooSoon.RetryAfter}, nil
		}
		return Result{}, err
	}

	row := store.MessageRow{
		RoomID:    roomID,
		UID:       actor.UID,
		Username:  actor.Username,
		Body:      text,
		PseudoIP:  actor.PseudoIP,
		CreatedAt: g.now().UnixMilli(),
	}
	id, err := g.store.InsertMessage(ctx, row)
	if err != nil {
		return Result{}, err
	}

	entry := protocol.ChatEntry{
		ID:        id,
		RoomID:    roomID,
		UID:       actor.UID,
		Username:  actor.Username,
		Body:      text,
		CreatedAt: row.CreatedAt,
	}
	if g.notifier != nil {
		g.notifier.Publish(entry)
	}
	return Result{Status: AcceptedPersisted, Entry: &entry}, nil
}
