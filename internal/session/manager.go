// Package session keeps one live conversation record per contact.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/repo"
)

type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	FindSessionByFlowToken(ctx context.Context, token string) (model.Session, error)
	FindActiveSessionByContact(ctx context.Context, contactID string) (model.Session, error)
	FindActiveSessionByPhone(ctx context.Context, phone string) (model.Session, error)
	ArchiveSession(ctx context.Context, id string) error
}

// Hints identify the conversation a send or receive belongs to.
type Hints struct {
	PhoneNumber string
	ContactID   string
	FlowToken   string
	Patch       model.ContextPatch
	// CreateIfMissing defaults to true when nil.
	CreateIfMissing *bool
}

func (h Hints) identifying() bool {
	return h.PhoneNumber != "" || h.ContactID != "" || h.FlowToken != ""
}

func (h Hints) mayCreate() bool {
	return h.CreateIfMissing == nil || *h.CreateIfMissing
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a session manager. A zero ttl means sessions never expire.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Ensure finds the live session matching h, creating one when allowed, and
// applies the context patch. It returns nil without error when h carries no
// identifying hint or creation is disabled and nothing matched.
func (m *Manager) Ensure(ctx context.Context, h Hints) (*model.Session, error) {
	now := m.now().UTC()

	sess, err := m.find(ctx, h, now)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return m.touch(ctx, sess, h, now)
	}

	if !h.identifying() || !h.mayCreate() {
		return nil, nil
	}

	created := &model.Session{
		PhoneNumber:     h.PhoneNumber,
		ContactID:       h.ContactID,
		FlowToken:       h.FlowToken,
		Context:         model.SessionContext{}.Merge(h.Patch),
		LastInteraction: now,
		ExpiresAt:       m.expiry(now),
	}
	if err := m.store.CreateSession(ctx, created); err != nil {
		if h.PhoneNumber == "" {
			return nil, err
		}
		// lost a race with a concurrent create for the same phone
		existing, findErr := m.store.FindActiveSessionByPhone(ctx, h.PhoneNumber)
		if findErr != nil {
			return nil, fmt.Errorf("%w (re-read: %v)", err, findErr)
		}
		return m.touch(ctx, &existing, h, now)
	}
	return created, nil
}

func (m *Manager) find(ctx context.Context, h Hints, now time.Time) (*model.Session, error) {
	lookups := []struct {
		key string
		fn  func(context.Context, string) (model.Session, error)
	}{
		{h.FlowToken, m.store.FindSessionByFlowToken},
		{h.ContactID, m.store.FindActiveSessionByContact},
		{h.PhoneNumber, m.store.FindActiveSessionByPhone},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		sess, err := l.fn(ctx, l.key)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Expired(now) {
			if err := m.store.ArchiveSession(ctx, sess.ID); err != nil {
				return nil, fmt.Errorf("archive expired session: %w", err)
			}
			slog.Info("session expired", "session_id", sess.ID)
			continue
		}
		return &sess, nil
	}
	return nil, nil
}

func (m *Manager) touch(ctx context.Context, sess *model.Session, h Hints, now time.Time) (*model.Session, error) {
	if sess.PhoneNumber == "" && h.PhoneNumber != "" {
		sess.PhoneNumber = h.PhoneNumber
	}
	if h.ContactID != "" {
		sess.ContactID = h.ContactID
	}
	if h.FlowToken != "" {
		sess.FlowToken = h.FlowToken
	}
	sess.Context = sess.Context.Merge(h.Patch)
	sess.LastInteraction = now
	if exp := m.expiry(now); exp != nil {
		sess.ExpiresAt = exp
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) expiry(now time.Time) *time.Time {
	if m.ttl <= 0 {
		return nil
	}
	exp := now.Add(m.ttl)
	return &exp
}

// Tag adds tags to a session's context.
func (m *Manager) Tag(ctx context.Context, id string, tags []string) (*model.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Context = sess.Context.Merge(model.ContextPatch{Tags: tags})
	if err := m.store.SaveSession(ctx, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Archive ends a conversation. Archived sessions are kept.
func (m *Manager) Archive(ctx context.Context, id string) error {
	return m.store.ArchiveSession(ctx, id)
}
