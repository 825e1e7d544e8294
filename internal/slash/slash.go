// Package slash interprets admin moderation commands typed into the composer.
package slash

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/showroom"
	"go.uber.org/zap"
)

const (
	DefaultPurge = 20
	MaxPurge     = 200
)

// Moderator performs admin actions on the server.
type Moderator interface {
	Purge(ctx context.Context, channel string, ids []string) ([]string, error)
	Lock(ctx context.Context, channel string, locked bool, minutes int) error
	Mute(ctx context.Context, email, channel string, minutes int) error
	SearchUsers(ctx context.Context, query string) ([]showroom.User, error)
}

// View is the local message list the commands act on.
type View interface {
	RecentConfirmed(t chat.Target, n int) []chat.Message
	RemoveMessages(t chat.Target, ids []string) []chat.Message
	RestoreMessages(t chat.Target, msgs []chat.Message)
	SetLocked(t chat.Target, locked bool, until *time.Time)
}

// Roster resolves names to emails.
type Roster interface {
	Lookup(query string) (presence.Entry, bool)
}

// Request is one composer submission.
type Request struct {
	Input  string
	Target chat.Target
	// Confirmed is set when the user confirmed a command that asked for it.
	Confirmed bool
}

// Result reports what the interpreter did.
type Result struct {
	// Handled is false when the input must be sent as a plain message.
	Handled bool
	// NeedsConfirm asks the caller to resubmit with Confirmed set.
	NeedsConfirm bool
	Command      string
	Message      string
	Err          error
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotChannel     = errors.New("moderation commands only work in channels")
	ErrUsage          = errors.New("usage")
)

// Interpreter dispatches slash commands for one identity.
type Interpreter struct {
	identity chat.Identity
	mod      Moderator
	view     View
	roster   Roster
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an interpreter acting as identity.
func New(identity chat.Identity, mod Moderator, view View, roster Roster, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		identity: identity,
		mod:      mod,
		view:     view,
		roster:   roster,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

type handler func(in *Interpreter, ctx context.Context, t chat.Target, args []string, confirmed bool) Result

var commands = map[string]handler{
	"purge":  (*Interpreter).purge,
	"lock":   (*Interpreter).lock,
	"unlock": (*Interpreter).unlock,
	"mute":   (*Interpreter).mute,
	"help":   (*Interpreter).help,
}

// Help lists the commands with their arguments.
var Help = []string{
	"/purge [n]              delete the last n messages (default 20, max 200)",
	"/lock [minutes]         lock the channel, optionally for a while",
	"/unlock                 unlock the channel",
	"/mute <who> [minutes]   mute a user in this channel",
	"/help                   show this list",
}

// Handle runs req if it is a command the identity may use. Input from
// non-admins is never consumed, so a line starting with "/" still sends.
func (in *Interpreter) Handle(ctx context.Context, req Request) Result {
	text := strings.TrimSpace(req.Input)
	if !strings.HasPrefix(text, "/") || !in.identity.IsAdmin() {
		return Result{}
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return Result{}
	}
	name := strings.ToLower(fields[0])
	h, ok := commands[name]
	if !ok {
		return Result{Handled: true, Command: name, Err: fmt.Errorf("%w /%s", ErrUnknownCommand, name)}
	}
	if name != "help" && !req.Target.IsChannel() {
		return Result{Handled: true, Command: name, Err: ErrNotChannel}
	}
	res := h(in, ctx, req.Target, fields[1:], req.Confirmed)
	res.Handled = true
	res.Command = name
	if res.Err != nil {
		in.logger.Warn("slash command failed", zap.String("command", name), zap.String("target", req.Target.Key()), zap.Error(res.Err))
	}
	return res
}

func (in *Interpreter) purge(ctx context.Context, t chat.Target, args []string, confirmed bool) Result {
	n := DefaultPurge
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 || v > MaxPurge {
			return Result{Err: fmt.Errorf("%w: /purge [n], 1 <= n <= %d", ErrUsage, MaxPurge)}
		}
		n = v
	}
	candidates := in.view.RecentConfirmed(t, n)
	if len(candidates) == 0 {
		return Result{Message: "nothing to purge"}
	}
	if !confirmed {
		return Result{
			NeedsConfirm: true,
			Message:      fmt.Sprintf("delete the last %d messages in %s? submit again to confirm", len(candidates), t),
		}
	}

	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
	}
	removed := in.view.RemoveMessages(t, ids)
	deleted, err := in.mod.Purge(ctx, t.Name, ids)
	if err != nil {
		in.view.RestoreMessages(t, removed)
		return Result{Err: fmt.Errorf("purge: %w", err)}
	}

	gone := make(map[string]struct{}, len(deleted))
	for _, id := range deleted {
		gone[id] = struct{}{}
	}
	var keep []chat.Message
	for _, m := range removed {
		if _, ok := gone[m.ID]; !ok {
			keep = append(keep, m)
		}
	}
	if len(keep) > 0 {
		in.view.RestoreMessages(t, keep)
		return Result{Message: fmt.Sprintf("purged %d of %d messages; %d restored", len(removed)-len(keep), len(removed), len(keep))}
	}
	return Result{Message: fmt.Sprintf("purged %d messages", len(removed))}
}

func (in *Interpreter) lock(ctx context.Context, t chat.Target, args []string, _ bool) Result {
	minutes, err := optionalMinutes(args, "/lock [minutes]")
	if err != nil {
		return Result{Err: err}
	}
	if err := in.mod.Lock(ctx, t.Name, true, minutes); err != nil {
		return Result{Err: fmt.Errorf("lock: %w", err)}
	}
	var until *time.Time
	msg := fmt.Sprintf("%s locked", t)
	if minutes > 0 {
		u := in.now().Add(time.Duration(minutes) * time.Minute)
		until = &u
		msg = fmt.Sprintf("%s locked for %d minutes", t, minutes)
	}
	in.view.SetLocked(t, true, until)
	return Result{Message: msg}
}

func (in *Interpreter) unlock(ctx context.Context, t chat.Target, args []string, _ bool) Result {
	if len(args) > 0 {
		return Result{Err: fmt.Errorf("%w: /unlock", ErrUsage)}
	}
	if err := in.mod.Lock(ctx, t.Name, false, 0); err != nil {
		return Result{Err: fmt.Errorf("unlock: %w", err)}
	}
	in.view.SetLocked(t, false, nil)
	return Result{Message: fmt.Sprintf("%s unlocked", t)}
}

func (in *Interpreter) mute(ctx context.Context, t chat.Target, args []string, _ bool) Result {
	if len(args) == 0 {
		return Result{Err: fmt.Errorf("%w: /mute <email-or-name> [minutes]", ErrUsage)}
	}
	// Names may contain spaces; a trailing number is the duration.
	minutes := 0
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[len(args)-1]); err == nil {
			if v < 0 {
				return Result{Err: fmt.Errorf("%w: minutes must be positive", ErrUsage)}
			}
			minutes = v
			args = args[:len(args)-1]
		}
	}
	email, err := in.Resolve(ctx, strings.Join(args, " "))
	if err != nil {
		return Result{Err: err}
	}
	if err := in.mod.Mute(ctx, email, t.Name, minutes); err != nil {
		return Result{Err: fmt.Errorf("mute: %w", err)}
	}
	if minutes > 0 {
		return Result{Message: fmt.Sprintf("%s muted in %s for %d minutes", email, t, minutes)}
	}
	return Result{Message: fmt.Sprintf("%s muted in %s", email, t)}
}

func (in *Interpreter) help(context.Context, chat.Target, []string, bool) Result {
	return Result{Message: strings.Join(Help, "\n")}
}

// Resolve turns free text into an email: a literal address first, then the
// presence roster, then a server user search. The actor's own address is
// refused.
func (in *Interpreter) Resolve(ctx context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	email := ""
	if strings.Contains(strings.TrimPrefix(q, "@"), "@") {
		email = strings.ToLower(strings.TrimPrefix(q, "@"))
	}
	q = strings.TrimPrefix(q, "@")
	if email == "" && in.roster != nil {
		if e, ok := in.roster.Lookup(q); ok {
			email = e.Email
		}
	}
	if email == "" {
		users, err := in.mod.SearchUsers(ctx, q)
		if err != nil {
			return "", fmt.Errorf("search users: %w", err)
		}
		email, err = pickUser(users, q)
		if err != nil {
			return "", err
		}
	}
	if in.identity.Is(email) {
		return "", fmt.Errorf("refusing to mute yourself")
	}
	return email, nil
}

func pickUser(users []showroom.User, q string) (string, error) {
	for _, u := range users {
		if strings.EqualFold(u.Email, q) || strings.EqualFold(u.Name, q) {
			return strings.ToLower(u.Email), nil
		}
	}
	switch len(users) {
	case 0:
		return "", fmt.Errorf("no user matches %q", q)
	case 1:
		return strings.ToLower(users[0].Email), nil
	}
	return "", fmt.Errorf("%q matches %d users; use an email", q, len(users))
}

func optionalMinutes(args []string, usage string) (int, error) {
	switch len(args) {
	case 0:
		return 0, nil
	case 1:
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %s", ErrUsage, usage)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUsage, usage)
}
