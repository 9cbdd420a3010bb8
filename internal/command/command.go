// Package command interprets slash-prefixed chat input and dispatches to
// moderation actions. Usage failures are expected outcomes delivered back
// to the caller as private notices; they never mutate state and are never
// persisted.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quickchat/server/internal/identity"
	"quickchat/server/internal/moderation"
)

// Prefix marks chat input as a command.
const Prefix = "/"

// UsageErrorKind classifies expected command failures.
type UsageErrorKind string

const (
	UnknownCommand   UsageErrorKind = "unknown_command"
	BadArity         UsageErrorKind = "bad_arity"
	MissingPrivilege UsageErrorKind = "missing_privilege"
	UserNotFound     UsageErrorKind = "user_not_found"
	InvalidDuration  UsageErrorKind = "invalid_duration"
)

// UsageError is an expected command failure, rendered as a private
// caller-only notice.
type UsageError struct {
	Kind   UsageErrorKind
	Detail string
}

func (e *UsageError) Error() string { return e.Detail }

// Result reports how input was handled. Handled=false means the input was
// not a command and should continue through the message pipeline. Reply,
// when set, is a private notice for the caller only.
type Result struct {
	Handled bool
	Reply   string
}

// Interpreter parses and dispatches commands against the moderation service.
type Interpreter struct {
	mod *moderation.Service
}

// NewInterpreter builds an interpreter over the moderation service.
func NewInterpreter(mod *moderation.Service) *Interpreter {
	return &Interpreter{mod: mod}
}

type commandSpec struct {
	minArgs   int
	usage     string
	privilege string
}

var commands = map[string]commandSpec{
	"/ban":    {minArgs: 3, usage: "/ban <uid> <duration> <reason...>", privilege: moderation.PrivilegeBan},
	"/unban":  {minArgs: 1, usage: "/unban <uid>", privilege: moderation.PrivilegeBan},
	"/mute":   {minArgs: 2, usage: "/mute <username> <reason...>", privilege: moderation.PrivilegeMute},
	"/unmute": {minArgs: 1, usage: "/unmute <username>", privilege: moderation.PrivilegeMute},
	"/uid":    {minArgs: 1, usage: "/uid <username>", privilege: moderation.PrivilegeBan},
}

// Interpret executes rawText as a command on behalf of actor. A non-slash
// input returns Handled=false. Expected failures return a *UsageError;
// anything else is a storage fault.
func (i *Interpreter) Interpret(ctx context.Context, roomID, rawText string, actor identity.Identity) (Result, error) {
	rawText = strings.TrimSpace(rawText)
	if !strings.HasPrefix(rawText, Prefix) {
		return Result{}, nil
	}

	fields := strings.Fields(rawText)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	spec, ok := commands[name]
	if !ok {
		return Result{Handled: true}, &UsageError{
			Kind:   UnknownCommand,
			Detail: fmt.Sprintf("unknown command %q", name),
		}
	}
	if len(args) < spec.minArgs {
		return Result{Handled: true}, &UsageError{
			Kind:   BadArity,
			Detail: fmt.Sprintf("usage: %s", spec.usage),
		}
	}

	allowed, err := i.mod.HasPrivilege(ctx, roomID, actor.UID, spec.privilege)
	if err != nil {
		return Result{Handled: true}, err
	}
	if !allowed {
		return Result{Handled: true}, &UsageError{
			Kind:   MissingPrivilege,
			Detail: fmt.Sprintf("you need the %q privilege to use %s", spec.privilege, name),
		}
	}

	switch name {
	case "/ban":
		return i.runBan(ctx, roomID, actor, args)
	case "/unban":
		_, err := i.mod.Unban(ctx, roomID, actor, args[0])
		return Result{Handled: true}, err
	case "/mute":
		return i.runMute(ctx, roomID, actor, args)
	case "/unmute":
		return i.runUnmute(ctx, roomID, actor, args)
	case "/uid":
		return i.runUID(ctx, roomID, args)
	}
	return Result{Handled: true}, nil // unreachable; the map is authoritative
}

func (i *Interpreter) runBan(ctx context.Context, roomID string, actor identity.Identity, args []string) (Result, error) {
	d, err := ParseDuration(args[1])
	if err != nil {
		return Result{Handled: true}, &UsageError{
			Kind:   InvalidDuration,
			Detail: fmt.Sprintf("invalid ban duration %q (use e.g. 30m, 2h, 1d, 45)", args[1]),
		}
	}
	reason := strings.Join(args[2:], " ")
	_, err = i.mod.Ban(ctx, roomID, actor, args[0], d, reason)
	if errors.Is(err, moderation.ErrCannotDemoteOwner) {
		return Result{Handled: true}, &UsageError{
			Kind:   MissingPrivilege,
			Detail: "room owners cannot be banned",
		}
	}
	return Result{Handled: true}, err
}

func (i *Interpreter) runMute(ctx context.Context, roomID string, actor identity.Identity, args []string) (Result, error) {
	uid, ok, err := i.mod.ResolveUsername(ctx, roomID, args[0])
	if err != nil {
		return Result{Handled: true}, err
	}
	if !ok {
		return Result{Handled: true}, userNotFound(args[0])
	}
	reason := strings.Join(args[1:], " ")
	err = i.mod.Mute(ctx, roomID, actor, uid, reason)
	if errors.Is(err, moderation.ErrCannotDemoteOwner) {
		return Result{Handled: true}, &UsageError{
			Kind:   MissingPrivilege,
			Detail: "room owners cannot be muted",
		}
	}
	return Result{Handled: true}, err
}

func (i *Interpreter) runUnmute(ctx context.Context, roomID string, actor identity.Identity, args []string) (Result, error) {
	uid, ok, err := i.mod.ResolveUsername(ctx, roomID, args[0])
	if err != nil {
		return Result{Handled: true}, err
	}
	if !ok {
		return Result{Handled: true}, userNotFound(args[0])
	}
	return Result{Handled: true}, i.mod.Unmute(ctx, roomID, actor, uid)
}

func (i *Interpreter) runUID(ctx context.Context, roomID string, args []string) (Result, error) {
	uid, ok, err := i.mod.ResolveUsername(ctx, roomID, args[0])
	if err != nil {
		return Result{Handled: true}, err
	}
	if !ok {
		return Result{Handled: true}, userNotFound(args[0])
	}
	return Result{Handled: true, Reply: fmt.Sprintf("%s has uid %s", args[0], uid)}, nil
}

func userNotFound(username string) *UsageError {
	return &UsageError{
		Kind:   UserNotFound,
		Detail: fmt.Sprintf("no user named %q in this room", username),
	}
}

// ParseDuration parses a ban duration: an integer prefix with an optional
// single-letter unit suffix — d=days, h=hours, m=minutes, none=seconds.
// A malformed or non-positive value is an error, never silent garbage.
func ParseDuration(s string) (time.Duration, error) {
	unit := time.Second
	num := s
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'd':
			unit, num = 24*time.Hour, s[:len(s)-1]
		case 'h':
			unit, num = time.Hour, s[:len(s)-1]
		case 'm':
			unit, num = time.Minute, s[:len(s)-1]
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return time.Duration(n) * unit, nil
}
