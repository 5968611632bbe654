package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence gateway for queue entries. List results are
// ordered by joined_at ascending with id as tie-break, so FIFO position is a
// slice index plus one.
type Repository interface {
	Create(ctx context.Context, e *QueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	ListWaiting(ctx context.Context, doctorID string) ([]*QueueEntry, error)
	ListAll(ctx context.Context, doctorID string) ([]*QueueEntry, error)
	CountWaiting(ctx context.Context, doctorID string) (int, error)
	// CountActive counts entries in any non-completed status.
	CountActive(ctx context.Context, doctorID string) (int, error)
	FindConsulting(ctx context.Context, doctorID string) (*QueueEntry, error)
	// Update persists status, timestamps and status_reason for an existing
	// entry and returns the stored row, or nil when the id is gone.
	Update(ctx context.Context, e *QueueEntry) (*QueueEntry, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteByStatus(ctx context.Context, doctorID string, status Status) (int, error)
	DeleteStaleCompleted(ctx context.Context, olderThan time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[string]map[Status]int, error)
}
