package subscription

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/queue"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/websocket"
)

// Router maps committed queue outcomes onto channels. It holds no state of
// its own: given an outcome it resolves the audience and emits. Delivery is
// the hub's fire-and-forget semantics; a session that misses an event
// resynchronizes on its next join.
type Router struct {
	hub *websocket.Hub
	log zerolog.Logger
}

var _ queue.Notifier = (*Router)(nil)
var _ doctor.AvailabilityNotifier = (*Router)(nil)

func NewRouter(hub *websocket.Hub, log zerolog.Logger) *Router {
	return &Router{hub: hub, log: log}
}

// QueueChanged is doctor-wide: the refreshed queue goes to the doctor
// channel only.
func (r *Router) QueueChanged(doctorID string, entries []*queue.QueueEntry) {
	r.hub.Emit(DoctorRoom(doctorID), EventQueueChanged, map[string]interface{}{
		"queue": entries,
	})
}

// QueueUpdate is patient-targeted: the position refresh goes to the pair
// channel and the patient's private channel.
func (r *Router) QueueUpdate(doctorID string, patientID uuid.UUID, position, waitMins int) {
	payload := queueUpdatePayload(patientID, position, waitMins)
	r.hub.Emit(PairRoom(doctorID, patientID.String()), EventQueueUpdate, payload)
	r.hub.Emit(PatientRoom(patientID.String()), EventQueueUpdate, payload)
}

func (r *Router) PatientStatusUpdated(doctorID string, patientID uuid.UUID, status queue.Status, reason string) {
	r.hub.Emit(PairRoom(doctorID, patientID.String()), EventPatientStatusUpdated, map[string]interface{}{
		"patientId": patientID.String(),
		"status":    status,
		"reason":    reason,
	})
}

func (r *Router) ConsultationStarted(p *queue.QueueEntry, d *doctor.Doctor) {
	payload := map[string]interface{}{"patient": p, "doctor": d}
	r.hub.Emit(PairRoom(d.ID, p.ID.String()), EventConsultationStarted, payload)
	r.hub.Emit(PatientRoom(p.ID.String()), EventConsultationStarted, payload)
}

func (r *Router) ConsultationCompleted(p *queue.QueueEntry, d *doctor.Doctor) {
	payload := map[string]interface{}{"patient": p, "doctor": d}
	r.hub.Emit(PairRoom(d.ID, p.ID.String()), EventConsultationCompleted, payload)
	r.hub.Emit(PatientRoom(p.ID.String()), EventConsultationCompleted, payload)
}

func (r *Router) PatientRemoved(p *queue.QueueEntry, d *doctor.Doctor, reason string) {
	payload := map[string]interface{}{"patient": p, "doctor": d, "reason": reason}
	r.hub.Emit(PairRoom(d.ID, p.ID.String()), EventPatientRemoved, payload)
	r.hub.Emit(PatientRoom(p.ID.String()), EventPatientRemoved, payload)
}

// DoctorAvailabilityChanged is doctor-wide.
func (r *Router) DoctorAvailabilityChanged(doctorID string, isAvailable bool) {
	r.hub.Emit(DoctorRoom(doctorID), EventDoctorAvailabilityUpdate, map[string]interface{}{
		"doctorId":    doctorID,
		"isAvailable": isAvailable,
	})
}
