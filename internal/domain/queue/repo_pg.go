package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const entryCols = `id, name, doctor_id, status, estimated_duration_minutes,
	joined_at, consultation_started_at, consultation_ended_at, status_reason,
	created_at, updated_at`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.Name, &e.DoctorID, &e.Status, &e.EstimatedDuration,
		&e.JoinedAt, &e.ConsultationStartedAt, &e.ConsultationEndedAt, &e.StatusReason,
		&e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *QueueEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (id, name, doctor_id, status, estimated_duration_minutes, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		e.ID, e.Name, e.DoctorID, e.Status, e.EstimatedDuration, e.JoinedAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) list(ctx context.Context, query string, args ...any) ([]*QueueEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) ListWaiting(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM queue_entries
		WHERE doctor_id = $1 AND status = 'waiting'
		ORDER BY joined_at, id`, doctorID)
}

func (r *repoPG) ListAll(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM queue_entries
		WHERE doctor_id = $1
		ORDER BY joined_at, id`, doctorID)
}

func (r *repoPG) CountWaiting(ctx context.Context, doctorID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entries
		WHERE doctor_id = $1 AND status = 'waiting'`, doctorID).Scan(&n)
	return n, err
}

func (r *repoPG) CountActive(ctx context.Context, doctorID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entries
		WHERE doctor_id = $1 AND status <> 'completed'`, doctorID).Scan(&n)
	return n, err
}

func (r *repoPG) FindConsulting(ctx context.Context, doctorID string) (*QueueEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryCols+` FROM queue_entries
		WHERE doctor_id = $1 AND status = 'consulting'
		ORDER BY consultation_started_at NULLS LAST, joined_at
		LIMIT 1`, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) Update(ctx context.Context, e *QueueEntry) (*QueueEntry, error) {
	stored, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2,
			consultation_started_at = $3,
			consultation_ended_at = $4,
			status_reason = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryCols, e.ID, e.Status, e.ConsultationStartedAt, e.ConsultationEndedAt, e.StatusReason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) DeleteByStatus(ctx context.Context, doctorID string, status Status) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM queue_entries WHERE doctor_id = $1 AND status = $2`, doctorID, status)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) DeleteStaleCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queue_entries
		WHERE status = 'completed' AND consultation_ended_at IS NOT NULL
		AND consultation_ended_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[string]map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT doctor_id, status, COUNT(*)
		FROM queue_entries GROUP BY doctor_id, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[Status]int)
	for rows.Next() {
		var doctorID string
		var status Status
		var n int
		if err := rows.Scan(&doctorID, &status, &n); err != nil {
			return nil, err
		}
		if out[doctorID] == nil {
			out[doctorID] = make(map[Status]int)
		}
		out[doctorID][status] = n
	}
	return out, rows.Err()
}
