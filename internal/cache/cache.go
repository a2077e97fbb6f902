package cache

import (
	"context"
	"time"
)

// MessageCache indexes sent messages by the provider's message id so status
// callbacks can be matched without a database lookup.
type MessageCache interface {
	StoreSent(ctx context.Context, messageID, providerMessageID string, sentAt time.Time) error
	LookupSent(ctx context.Context, providerMessageID string) (messageID string, ok bool, err error)
}

// Locker hands out short lived, named run locks.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error)
}

type Lock interface {
	Release(ctx context.Context) error
}
