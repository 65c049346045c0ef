package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines outbox persistence.
type Repository interface {
	// Save stores a new outbox message.
	Save(ctx context.Context, msg *Message) error

	// SaveBatch stores multiple outbox messages in one round trip.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished retrieves unpublished messages ordered by creation time.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	// MarkPublished marks a message as successfully published.
	MarkPublished(ctx context.Context, id int64) error

	// MarkFailed records a publish failure and schedules a retry.
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}

// InMemoryRepository is an outbox repository for tests and local mode.
type InMemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[int64]*Message
}

// NewInMemoryRepository creates an empty in-memory outbox.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{msgs: make(map[int64]*Message)}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.msgs[msg.ID] = msg
	return nil
}

func (r *InMemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	pending := make([]*Message, 0)
	for _, msg := range r.msgs {
		if msg.IsPublished() {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		pending = append(pending, msg)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *InMemoryRepository) MarkPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.msgs[id]; ok {
		now := time.Now().UTC()
		msg.PublishedAt = &now
	}
	return nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.msgs[id]; ok {
		msg.RetryCount++
		msg.LastError = &errMsg
		msg.NextRetryAt = &nextRetryAt
	}
	return nil
}

func (r *InMemoryRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	var deleted int64
	for id, msg := range r.msgs {
		if msg.IsPublished() && msg.PublishedAt.Before(cutoff) {
			delete(r.msgs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Messages returns all stored messages, for assertions in tests.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, 0, len(r.msgs))
	for _, msg := range r.msgs {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
