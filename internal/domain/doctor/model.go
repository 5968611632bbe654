package doctor

import "time"

// Doctor maps to the doctors table. CurrentPatients and WaitingPatients are
// derived from the queue at read time and never stored.
type Doctor struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Specialization      string    `db:"specialization" json:"specialization"`
	IsAvailable         bool      `db:"is_available" json:"is_available"`
	AverageConsultation int       `db:"average_consultation_minutes" json:"average_consultation_minutes"`
	MaxDailyPatients    int       `db:"max_daily_patients" json:"max_daily_patients"`
	ConsultationFee     *float64  `db:"consultation_fee" json:"consultation_fee,omitempty"`
	Bio                 *string   `db:"bio" json:"bio,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`

	CurrentPatients int `db:"-" json:"current_patients"`
	WaitingPatients int `db:"-" json:"waiting_patients"`
}
