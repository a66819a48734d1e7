// Package ledger is the single source of truth for per-extension
// authorization. It is not safe for concurrent use; the host coordinator
// owns it.
package ledger

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Status is an extension's authorization state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAuthorized   Status = "authorized"
	StatusUnauthorized Status = "unauthorized"
)

// Entry is the authorization record for one identity.
type Entry struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Authorized reports whether calls from this entry may proceed.
func (e Entry) Authorized() bool { return e.Status == StatusAuthorized }

// Store persists entries. Failures are logged by the ledger and never
// block an in-memory transition.
type Store interface {
	Load() ([]Entry, error)
	Save(Entry) error
	Delete(identity string) error
}

// Ledger holds at most one entry per identity.
type Ledger struct {
	entries map[string]*Entry
	store   Store
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a ledger, seeding it from store when one is given.
func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		entries: make(map[string]*Entry),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	if store == nil {
		return l
	}

	loaded, err := store.Load()
	if err != nil {
		logger.Error("failed to load authorization ledger", zap.Error(err))
		return l
	}
	for i := range loaded {
		e := loaded[i]
		l.entries[e.Identity] = &e
	}
	logger.Info("authorization ledger loaded", zap.Int("entries", len(loaded)))
	return l
}

// EnsureEntry creates a pending entry if none exists. An existing entry
// only has its display name refreshed.
func (l *Ledger) EnsureEntry(identity, displayName string) Entry {
	if e, ok := l.entries[identity]; ok {
		if displayName != "" && e.DisplayName != displayName {
			e.DisplayName = displayName
			e.UpdatedAt = l.now()
			l.persist(e)
		}
		return *e
	}

	now := l.now()
	e := &Entry{
		Identity:    identity,
		DisplayName: displayName,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.entries[identity] = e
	l.persist(e)
	return *e
}

// Authorize force-sets the entry to authorized, creating it if needed.
// changed is false when it already was. Callers emit the notification.
func (l *Ledger) Authorize(identity, displayName string) (entry Entry, changed bool) {
	return l.set(identity, displayName, StatusAuthorized)
}

// Revoke marks the identity unauthorized. This is the only path to
// Unauthorized and is driven from outside the extension protocol.
func (l *Ledger) Revoke(identity string) (entry Entry, changed bool) {
	return l.set(identity, "", StatusUnauthorized)
}

// Reset forgets the identity entirely; the next contact starts over as
// pending.
func (l *Ledger) Reset(identity string) bool {
	if _, ok := l.entries[identity]; !ok {
		return false
	}
	delete(l.entries, identity)
	if l.store != nil {
		if err := l.store.Delete(identity); err != nil {
			l.logger.Error("failed to delete ledger entry",
				zap.String("identity", identity), zap.Error(err))
		}
	}
	return true
}

// Entry looks up an identity.
func (l *Ledger) Entry(identity string) (Entry, bool) {
	e, ok := l.entries[identity]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IsAuthorized reports whether identity has an authorized entry.
func (l *Ledger) IsAuthorized(identity string) bool {
	e, ok := l.entries[identity]
	return ok && e.Authorized()
}

// List returns all entries sorted by identity.
func (l *Ledger) List() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (l *Ledger) set(identity, displayName string, status Status) (Entry, bool) {
	now := l.now()
	e, ok := l.entries[identity]
	if !ok {
		e = &Entry{Identity: identity, CreatedAt: now}
		l.entries[identity] = e
	}
	if displayName != "" {
		e.DisplayName = displayName
	}
	changed := e.Status != status
	e.Status = status
	e.UpdatedAt = now
	l.persist(e)
	return *e, changed
}

func (l *Ledger) persist(e *Entry) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(*e); err != nil {
		l.logger.Error("failed to persist ledger entry",
			zap.String("identity", e.Identity),
			zap.String("status", string(e.Status)),
			zap.Error(err))
	}
}
