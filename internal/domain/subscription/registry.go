package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/queue"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/websocket"
)

// ErrDoctorNotAssigned is returned when a patient entry has no owning doctor,
// which would leave the session with no pair channel to join.
var ErrDoctorNotAssigned = errors.New("patient has no assigned doctor")

// Role is the capability a session acquires by joining a channel.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

type binding struct {
	role      Role
	doctorID  string
	patientID uuid.UUID
}

// Registry tracks which sessions belong to which channels and what role each
// session has bound. The hub owns the room membership itself; the registry
// owns the role bindings and the join/leave policy on top of it.
type Registry struct {
	hub   *websocket.Hub
	queue QueueService
	log   zerolog.Logger

	mu       sync.RWMutex
	bindings map[*websocket.Session]binding
}

func NewRegistry(hub *websocket.Hub, queueSvc QueueService, log zerolog.Logger) *Registry {
	r := &Registry{
		hub:      hub,
		queue:    queueSvc,
		log:      log,
		bindings: make(map[*websocket.Session]binding),
	}
	hub.OnDisconnect(r.drop)
	return r
}

// JoinDoctor binds the session as the doctor and joins the doctor channel
// plus every pair channel of the doctor's current entries, so the session
// immediately receives all in-flight per-patient events.
func (r *Registry) JoinDoctor(ctx context.Context, s *websocket.Session, doctorID string) error {
	if strings.TrimSpace(doctorID) == "" {
		return &queue.ValidationError{Field: "doctorId", Reason: "must not be empty"}
	}

	r.mu.Lock()
	r.bindings[s] = binding{role: RoleDoctor, doctorID: doctorID}
	r.mu.Unlock()

	r.hub.Join(s, DoctorRoom(doctorID))

	entries, err := r.queue.Queue(ctx, doctorID)
	if err != nil {
		if errors.Is(err, queue.ErrDoctorNotFound) {
			// The channel is still valid; entries will join pair rooms as
			// they are created.
			return nil
		}
		return fmt.Errorf("join doctor %s: %w", doctorID, err)
	}
	for _, e := range entries {
		r.hub.Join(s, PairRoom(doctorID, e.ID.String()))
	}
	return nil
}

// JoinPatient validates the patient, binds the session as that patient, joins
// the private and pair channels, and re-emits the current queue position to
// this session so a reconnecting client resynchronizes without a replay.
func (r *Registry) JoinPatient(ctx context.Context, s *websocket.Session, patientID string) error {
	id, err := uuid.Parse(patientID)
	if err != nil {
		return &queue.ValidationError{Field: "patientId", Reason: "must be a valid uuid"}
	}

	e, err := r.queue.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.DoctorID == "" {
		return ErrDoctorNotAssigned
	}

	r.mu.Lock()
	r.bindings[s] = binding{role: RolePatient, patientID: id, doctorID: e.DoctorID}
	r.mu.Unlock()

	r.hub.Join(s, PatientRoom(patientID))
	r.hub.Join(s, PairRoom(e.DoctorID, patientID))

	info, err := r.queue.Position(ctx, id)
	if err != nil {
		return err
	}
	r.hub.EmitTo(s, EventQueueUpdate, queueUpdatePayload(id, info.Position, info.EstimatedWaitMins))
	return nil
}

// Leave removes the session from one channel; the role binding stays.
func (r *Registry) Leave(s *websocket.Session, room string) {
	r.hub.Leave(s, room)
}

// LeaveAll removes the session from every channel and clears its binding.
func (r *Registry) LeaveAll(s *websocket.Session) {
	r.hub.LeaveAll(s)
	r.drop(s)
}

func (r *Registry) drop(s *websocket.Session) {
	r.mu.Lock()
	delete(r.bindings, s)
	r.mu.Unlock()
}

// AuthorizeDoctor rejects unless the session is bound as the doctor owning
// doctorID. Role-gated commands go through here before touching state.
func (r *Registry) AuthorizeDoctor(s *websocket.Session, doctorID string) error {
	r.mu.RLock()
	b, ok := r.bindings[s]
	r.mu.RUnlock()

	if !ok || b.role != RoleDoctor || b.doctorID != doctorID {
		return queue.ErrUnauthorized
	}
	return nil
}

// BoundDoctorID returns the doctor id the session is bound to, if the
// session holds the doctor role.
func (r *Registry) BoundDoctorID(s *websocket.Session) (string, bool) {
	r.mu.RLock()
	b, ok := r.bindings[s]
	r.mu.RUnlock()

	if !ok || b.role != RoleDoctor {
		return "", false
	}
	return b.doctorID, true
}

func queueUpdatePayload(patientID uuid.UUID, position, waitMins int) map[string]interface{} {
	return map[string]interface{}{
		"patientId":         patientID.String(),
		"position":          position,
		"estimatedWaitTime": waitMins,
	}
}
