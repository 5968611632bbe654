package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/queue"
)

// QueueService is the slice of the orchestrator the transport layer consumes.
// Satisfied by *queue.Service.
type QueueService interface {
	Get(ctx context.Context, patientID uuid.UUID) (*queue.QueueEntry, error)
	Position(ctx context.Context, patientID uuid.UUID) (*queue.PositionInfo, error)
	Queue(ctx context.Context, doctorID string) ([]*queue.QueueEntry, error)
	Transition(ctx context.Context, patientID uuid.UUID, target queue.Status, reason string) (*queue.QueueEntry, error)
	Remove(ctx context.Context, patientID uuid.UUID, reason string) (*queue.QueueEntry, error)
}

// DoctorService is the slice of the doctor service the transport layer
// consumes. Satisfied by *doctor.Service.
type DoctorService interface {
	SetAvailability(ctx context.Context, id string, isAvailable bool) (*doctor.Doctor, error)
}
