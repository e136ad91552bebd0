package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/flowbot/core/logger"
)

// Localizer resolves user-facing texts.
type Localizer interface {
	T(lang, key string, params map[string]string) string
	List(lang, key string) []string
}

// LanguageFunc returns the preferred language of a user.
type LanguageFunc func(ctx context.Context, userID int64) string

// RuntimeOptions configures a Runtime. Zero values fall back to defaults.
type RuntimeOptions struct {
	Store           *Store
	Localizer       Localizer
	Language        LanguageFunc
	DefaultLanguage string
	// Location is used to pick the month a calendar opens on.
	Location *time.Location
	Now      func() time.Time
	NewID    func() string
}

// Runtime drives flows for every user of the bot.
type Runtime struct {
	store       *Store
	loc         Localizer
	lang        LanguageFunc
	defaultLang string
	location    *time.Location
	now         func() time.Time
	newID       func() string
	locks       *keyedMutex
}

// NewRuntime wires a Runtime from opts.
func NewRuntime(opts RuntimeOptions) *Runtime {
	r := &Runtime{
		store:       opts.Store,
		loc:         opts.Localizer,
		lang:        opts.Language,
		defaultLang: opts.DefaultLanguage,
		location:    opts.Location,
		now:         opts.Now,
		newID:       opts.NewID,
		locks:       newKeyedMutex(),
	}
	if r.store == nil {
		r.store = NewStore()
	}
	if r.defaultLang == "" {
		r.defaultLang = "en"
	}
	if r.location == nil {
		r.location = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = newSessionID
	}
	return r
}

// Store exposes the session store backing the runtime.
func (r *Runtime) Store() *Store { return r.store }

// Start runs fn as the new flow of the event's user, interrupting any flow already running.
func (r *Runtime) Start(ctx context.Context, t Transport, fn Flow, initial State) error {
	if fn == nil {
		return errors.New("flow: nil flow")
	}
	key, ok := ResolveUser(t)
	if !ok {
		r.notify(ctx, t, "runtime.userNotFound")
		return ErrNoUser
	}
	unlock := r.locks.Lock(key)
	defer unlock()

	if old, ok := r.store.Get(key); ok {
		r.interrupt(ctx, key, old, t)
	}

	state := make(State, len(initial))
	for k, v := range initial {
		state[k] = v
	}
	now := r.now()
	sess := &Session{
		ID:        calendarPrefix(r.newID()),
		State:     state,
		Transport: t,
		StartedAt: now,
		UpdatedAt: now,
		co:        newCoroutine(fn, state),
	}
	r.store.Set(key, sess)
	logger.Info(logger.WithSession(ctx, sess.ID), "flow", "flow.start", slog.Int64("user_id", int64(key)))

	r.drive(ctx, key, sess, t, nil)
	return nil
}

// interrupt signals the running flow, unwinds it and removes it before a replacement is stored.
func (r *Runtime) interrupt(ctx context.Context, key UserKey, old *Session, t Transport) {
	// whatever the old flow yields while handling the interruption is dropped
	old.co.next(nil, ErrFlowInterrupted)
	old.co.close()

	cleanup := old.Transport
	if cleanup == nil {
		cleanup = t
	}
	r.disarm(ctx, cleanup, old)
	r.store.deleteIf(key, old)
	logger.Info(logger.WithSession(ctx, old.ID), "flow", "flow.interrupted")
}

// HandleText routes a free-text message to the user's active flow.
func (r *Runtime) HandleText(ctx context.Context, t Transport, text string) error {
	key, ok := ResolveUser(t)
	if !ok {
		r.notify(ctx, t, "runtime.userNotFound")
		return ErrNoUser
	}
	unlock := r.locks.Lock(key)
	defer unlock()

	sess, ok := r.store.Get(key)
	if !ok {
		r.notify(ctx, t, "runtime.noActiveFlow")
		return nil
	}
	ctx = logger.WithSession(ctx, sess.ID)
	res := r.routeText(ctx, t, sess, text)
	r.apply(ctx, key, sess, t, res)
	return nil
}

// HandleCallback routes an inline button press to the user's active flow.
func (r *Runtime) HandleCallback(ctx context.Context, t Transport, data string) error {
	key, ok := ResolveUser(t)
	if !ok {
		r.ack(ctx, t)
		r.notify(ctx, t, "runtime.userNotFound")
		return ErrNoUser
	}
	unlock := r.locks.Lock(key)
	defer unlock()

	sess, ok := r.store.Get(key)
	if !ok {
		r.ack(ctx, t)
		r.notify(ctx, t, "runtime.noActiveFlow")
		return nil
	}
	ctx = logger.WithSession(ctx, sess.ID)
	res := r.routeCallback(ctx, t, sess, data)
	r.apply(ctx, key, sess, t, res)
	return nil
}

func (r *Runtime) apply(ctx context.Context, key UserKey, sess *Session, t Transport, res resolution) {
	switch res.action {
	case actionProceed:
		r.drive(ctx, key, sess, t, res.input)
	case actionCancel:
		r.teardown(ctx, key, sess, t)
		logger.Info(ctx, "flow", "flow.cancelled", slog.String("by", "user"))
	}
}

// Cancel drops the user's active flow without notifying it. It reports whether a flow was running.
func (r *Runtime) Cancel(ctx context.Context, t Transport) bool {
	key, ok := ResolveUser(t)
	if !ok {
		return false
	}
	return r.cancel(ctx, key, t, "external", "")
}

// CancelUser drops the flow of user from outside any chat event, e.g. an admin command.
// The user is told with the bot.actionCancelled notice on the session's transport.
func (r *Runtime) CancelUser(ctx context.Context, user UserKey) bool {
	return r.cancel(ctx, user, nil, "admin", "bot.actionCancelled")
}

func (r *Runtime) cancel(ctx context.Context, key UserKey, t Transport, by, notice string) bool {
	unlock := r.locks.Lock(key)
	defer unlock()

	sess, ok := r.store.Get(key)
	if !ok {
		return false
	}
	ctx = logger.WithSession(ctx, sess.ID)
	cleanup := sess.Transport
	if cleanup == nil {
		cleanup = t
	}
	r.teardown(ctx, key, sess, cleanup)
	if notice != "" {
		r.notify(ctx, cleanup, notice)
	}
	logger.Info(ctx, "flow", "flow.cancelled", slog.String("by", by))
	return true
}

// Active reports whether the event's user has a running flow.
func (r *Runtime) Active(t Transport) bool {
	key, ok := ResolveUser(t)
	if !ok {
		return false
	}
	return r.store.Has(key)
}

// Sessions returns the number of running flows.
func (r *Runtime) Sessions() int { return r.store.Len() }

// SessionInfo is a read-only view of a running flow.
type SessionInfo struct {
	User      UserKey
	ID        string
	Pending   PendingKind
	StartedAt time.Time
	UpdatedAt time.Time
}

// Snapshot lists running flows for diagnostics.
func (r *Runtime) Snapshot() []SessionInfo {
	snap := r.store.Snapshot()
	out := make([]SessionInfo, 0, len(snap))
	for key, sess := range snap {
		unlock := r.locks.Lock(key)
		info := SessionInfo{
			User:      key,
			ID:        sess.ID,
			Pending:   PendingKind(pendingKind(sess.Pending)),
			StartedAt: sess.StartedAt,
			UpdatedAt: sess.UpdatedAt,
		}
		unlock()
		out = append(out, info)
	}
	return out
}

// Close unwinds every running flow without touching the chat. Used on shutdown.
func (r *Runtime) Close(ctx context.Context) {
	for key, sess := range r.store.Snapshot() {
		unlock := r.locks.Lock(key)
		sess.Pending = nil
		sess.co.close()
		r.store.deleteIf(key, sess)
		unlock()
	}
	logger.Info(ctx, "flow", "runtime.closed")
}

// language picks the user's language, falling back to the default.
func (r *Runtime) language(ctx context.Context, t Transport) string {
	if r.lang == nil || t == nil {
		return r.defaultLang
	}
	id := t.UserID()
	if id == 0 {
		id = t.ChatID()
	}
	if lang := strings.TrimSpace(r.lang(ctx, id)); lang != "" {
		return lang
	}
	return r.defaultLang
}

// text localizes key for the event's user. Without a Localizer the key itself is returned.
func (r *Runtime) text(ctx context.Context, t Transport, key string) string {
	if r.loc == nil {
		return key
	}
	return r.loc.T(r.language(ctx, t), key, nil)
}

func (r *Runtime) orDefault(ctx context.Context, t Transport, s, key string) string {
	if s != "" {
		return s
	}
	return r.text(ctx, t, key)
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
