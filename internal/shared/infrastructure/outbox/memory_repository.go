package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps messages in process. Used by tests and by the
// CLI when no broker is configured.
type InMemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	msgs   []*Message
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *InMemoryRepository) SaveBatch(_ context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.nextID++
		msg.ID = r.nextID
		r.msgs = append(r.msgs, msg)
	}
	return nil
}

func (r *InMemoryRepository) GetUnpublished(_ context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var due []*Message
	for _, msg := range r.msgs {
		if msg.DueAt(now) {
			due = append(due, msg)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *InMemoryRepository) MarkPublished(_ context.Context, id int64) error {
	return r.update(id, func(m *Message) {
		now := time.Now()
		m.PublishedAt = &now
	})
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.update(id, func(m *Message) {
		m.RetryCount++
		m.LastError = &errMsg
		m.NextRetryAt = &nextRetryAt
	})
}

func (r *InMemoryRepository) MarkDead(_ context.Context, id int64, reason string) error {
	return r.update(id, func(m *Message) {
		now := time.Now()
		m.RetryCount++
		m.LastError = &reason
		m.DeadLetteredAt = &now
		m.DeadLetterReason = &reason
	})
}

func (r *InMemoryRepository) DeleteOld(_ context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	kept := r.msgs[:0]
	var deleted int64
	for _, msg := range r.msgs {
		if msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.msgs = kept
	return deleted, nil
}

// Messages returns a snapshot of everything stored.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.msgs...)
}

func (r *InMemoryRepository) update(id int64, fn func(*Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.msgs {
		if msg.ID == id {
			fn(msg)
			return nil
		}
	}
	return nil
}
