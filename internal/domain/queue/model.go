package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is a queue entry's lifecycle state. The usual path is
// waiting -> next -> consulting -> completed, with late as a side branch.
// Individual transitions are deliberately unconstrained: the orchestrator
// enforces cross-entry invariants (single consulting per doctor, capacity),
// not per-entry paths, so a manual correction like completed -> waiting is
// accepted.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusNext       Status = "next"
	StatusConsulting Status = "consulting"
	StatusCompleted  Status = "completed"
	StatusLate       Status = "late"
)

var validStatuses = map[Status]bool{
	StatusWaiting:    true,
	StatusNext:       true,
	StatusConsulting: true,
	StatusCompleted:  true,
	StatusLate:       true,
}

// Valid reports whether s is one of the five recognized status labels.
func (s Status) Valid() bool { return validStatuses[s] }

// QueueEntry maps to the queue_entries table. JoinedAt is immutable after
// creation and is the sole FIFO ordering key within a doctor's waiting set.
type QueueEntry struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	Name                  string     `db:"name" json:"name"`
	DoctorID              string     `db:"doctor_id" json:"doctor_id"`
	Status                Status     `db:"status" json:"status"`
	EstimatedDuration     int        `db:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	JoinedAt              time.Time  `db:"joined_at" json:"joined_at"`
	ConsultationStartedAt *time.Time `db:"consultation_started_at" json:"consultation_started_at,omitempty"`
	ConsultationEndedAt   *time.Time `db:"consultation_ended_at" json:"consultation_ended_at,omitempty"`
	StatusReason          *string    `db:"status_reason" json:"status_reason,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`

	// Position is the 1-based FIFO rank among waiting entries, 0 for any
	// other status. Computed, never stored.
	Position int `db:"-" json:"position,omitempty"`
}

// PositionInfo is the answer to a patient's "where am I" query.
type PositionInfo struct {
	PatientID         uuid.UUID `json:"patient_id"`
	Status            Status    `json:"status"`
	Position          int       `json:"position"`
	EstimatedWaitMins int       `json:"estimated_wait_minutes"`
}

// DoctorStats is the per-doctor slice of the dashboard aggregate.
type DoctorStats struct {
	DoctorID          string `json:"doctor_id"`
	DoctorName        string `json:"doctor_name"`
	Waiting           int    `json:"waiting"`
	Consulting        int    `json:"consulting"`
	Completed         int    `json:"completed"`
	EstimatedWaitMins int    `json:"estimated_wait_minutes"`
}

// Stats is the dashboard aggregate across all doctors.
type Stats struct {
	TotalWaiting    int            `json:"total_waiting"`
	TotalConsulting int            `json:"total_consulting"`
	TotalCompleted  int            `json:"total_completed"`
	Doctors         []*DoctorStats `json:"doctors"`
}
