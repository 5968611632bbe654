// Package subscription binds transport sessions to queue channels. It owns
// channel naming, session role bindings, and the fan-out of queue events to
// the right rooms.
package subscription

import "fmt"

// Channel names are produced only here. Call sites never build room strings.

func DoctorRoom(doctorID string) string {
	return fmt.Sprintf("doctor:%s", doctorID)
}

func PatientRoom(patientID string) string {
	return fmt.Sprintf("patient:%s", patientID)
}

// PairRoom is the doctor+patient channel used for per-patient events that
// both sides observe.
func PairRoom(doctorID, patientID string) string {
	return fmt.Sprintf("doctor:%s:patient:%s", doctorID, patientID)
}

// Event names on the wire.
const (
	EventQueueChanged             = "queueChanged"
	EventQueueUpdate              = "queueUpdate"
	EventPatientStatusUpdated     = "patientStatusUpdated"
	EventConsultationStarted      = "consultationStarted"
	EventConsultationCompleted    = "consultationCompleted"
	EventPatientRemoved           = "patientRemoved"
	EventDoctorAvailabilityUpdate = "doctorAvailabilityUpdate"
	EventRoomJoined               = "roomJoined"
	EventRoomLeft                 = "roomLeft"
	EventError                    = "error"
)
