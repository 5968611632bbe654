package doctor

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const doctorCols = `d.id, d.name, d.specialization, d.is_available,
	d.average_consultation_minutes, d.max_daily_patients, d.consultation_fee, d.bio,
	d.created_at, d.updated_at,
	COUNT(q.id) FILTER (WHERE q.status <> 'completed') AS current_patients,
	COUNT(q.id) FILTER (WHERE q.status = 'waiting') AS waiting_patients`

const doctorFromClause = ` FROM doctors d
	LEFT JOIN queue_entries q ON q.doctor_id = d.id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.IsAvailable,
		&d.AverageConsultation, &d.MaxDailyPatients, &d.ConsultationFee, &d.Bio,
		&d.CreatedAt, &d.UpdatedAt, &d.CurrentPatients, &d.WaitingPatients)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, specialization, is_available,
			average_consultation_minutes, max_daily_patients, consultation_fee, bio)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.Name, d.Specialization, d.IsAvailable,
		d.AverageConsultation, d.MaxDailyPatients, d.ConsultationFee, d.Bio)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Doctor, error) {
	d, err := scanDoctor(r.pool.QueryRow(ctx,
		`SELECT `+doctorCols+doctorFromClause+` WHERE d.id = $1 GROUP BY d.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+doctorCols+doctorFromClause+` GROUP BY d.id ORDER BY d.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) SetAvailability(ctx context.Context, id string, isAvailable bool) (*Doctor, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE doctors SET is_available = $2, updated_at = NOW() WHERE id = $1`, id, isAvailable)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}
