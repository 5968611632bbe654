package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/queue"
	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/platform/websocket"
)

const commandTimeout = 10 * time.Second

// command is the inbound client message shape. A single envelope covers all
// actions; unused fields stay zero.
type command struct {
	Action      string `json:"action"`
	DoctorID    string `json:"doctorId"`
	PatientID   string `json:"patientId"`
	Room        string `json:"room"`
	Reason      string `json:"reason"`
	IsAvailable *bool  `json:"isAvailable"`
}

// CommandHandler dispatches inbound WebSocket commands. It runs on each
// session's read goroutine; every branch is one bounded service call.
type CommandHandler struct {
	hub      *websocket.Hub
	registry *Registry
	queue    QueueService
	doctors  DoctorService
	log      zerolog.Logger
}

var _ websocket.MessageHandler = (*CommandHandler)(nil)

func NewCommandHandler(hub *websocket.Hub, reg *Registry, queueSvc QueueService, doctorSvc DoctorService, log zerolog.Logger) *CommandHandler {
	return &CommandHandler{hub: hub, registry: reg, queue: queueSvc, doctors: doctorSvc, log: log}
}

func (h *CommandHandler) HandleMessage(s *websocket.Session, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.emitError(s, "", "badRequest", "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Action {
	case "joinDoctorRoom":
		h.joinDoctorRoom(ctx, s, cmd)
	case "joinPatientRoom":
		h.joinPatientRoom(ctx, s, cmd)
	case "leaveRoom":
		h.registry.Leave(s, cmd.Room)
		h.hub.EmitTo(s, EventRoomLeft, map[string]interface{}{"room": cmd.Room})
	case "startConsultation":
		h.transition(ctx, s, cmd, queue.StatusConsulting)
	case "completeConsultation":
		h.transition(ctx, s, cmd, queue.StatusCompleted)
	case "removePatient":
		h.removePatient(ctx, s, cmd)
	case "updateDoctorAvailability":
		h.updateAvailability(ctx, s, cmd)
	default:
		h.emitError(s, cmd.Action, "unknownAction", "unrecognized action")
	}
}

func (h *CommandHandler) joinDoctorRoom(ctx context.Context, s *websocket.Session, cmd command) {
	if err := h.registry.JoinDoctor(ctx, s, cmd.DoctorID); err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	h.hub.EmitTo(s, EventRoomJoined, map[string]interface{}{
		"room": DoctorRoom(cmd.DoctorID),
		"role": RoleDoctor,
	})
}

func (h *CommandHandler) joinPatientRoom(ctx context.Context, s *websocket.Session, cmd command) {
	if err := h.registry.JoinPatient(ctx, s, cmd.PatientID); err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	h.hub.EmitTo(s, EventRoomJoined, map[string]interface{}{
		"room": PatientRoom(cmd.PatientID),
		"role": RolePatient,
	})
}

// transition handles the doctor-gated start/complete commands. Authorization
// checks that the session's bound doctor owns the target patient before any
// state changes.
func (h *CommandHandler) transition(ctx context.Context, s *websocket.Session, cmd command, target queue.Status) {
	id, err := uuid.Parse(cmd.PatientID)
	if err != nil {
		h.emitError(s, cmd.Action, "badRequest", "patientId must be a valid uuid")
		return
	}
	e, err := h.queue.Get(ctx, id)
	if err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	if err := h.registry.AuthorizeDoctor(s, e.DoctorID); err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	if _, err := h.queue.Transition(ctx, id, target, cmd.Reason); err != nil {
		h.emitDomainError(s, cmd.Action, err)
	}
}

func (h *CommandHandler) removePatient(ctx context.Context, s *websocket.Session, cmd command) {
	id, err := uuid.Parse(cmd.PatientID)
	if err != nil {
		h.emitError(s, cmd.Action, "badRequest", "patientId must be a valid uuid")
		return
	}
	e, err := h.queue.Get(ctx, id)
	if err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	if err := h.registry.AuthorizeDoctor(s, e.DoctorID); err != nil {
		h.emitDomainError(s, cmd.Action, err)
		return
	}
	if _, err := h.queue.Remove(ctx, id, cmd.Reason); err != nil {
		h.emitDomainError(s, cmd.Action, err)
	}
}

func (h *CommandHandler) updateAvailability(ctx context.Context, s *websocket.Session, cmd command) {
	doctorID, ok := h.registry.BoundDoctorID(s)
	if !ok {
		h.emitDomainError(s, cmd.Action, queue.ErrUnauthorized)
		return
	}
	if cmd.IsAvailable == nil {
		h.emitError(s, cmd.Action, "badRequest", "isAvailable is required")
		return
	}
	if _, err := h.doctors.SetAvailability(ctx, doctorID, *cmd.IsAvailable); err != nil {
		h.emitDomainError(s, cmd.Action, err)
	}
}

// emitDomainError translates domain errors into wire error codes.
func (h *CommandHandler) emitDomainError(s *websocket.Session, action string, err error) {
	var ve *queue.ValidationError
	switch {
	case errors.As(err, &ve):
		h.emitError(s, action, "badRequest", ve.Error())
	case errors.Is(err, queue.ErrUnauthorized):
		h.emitError(s, action, "unauthorized", "doctor role with matching doctor id required")
	case errors.Is(err, queue.ErrPatientNotFound):
		h.emitError(s, action, "patientNotFound", err.Error())
	case errors.Is(err, queue.ErrDoctorNotFound), errors.Is(err, doctor.ErrNotFound):
		h.emitError(s, action, "doctorNotFound", err.Error())
	case errors.Is(err, ErrDoctorNotAssigned):
		h.emitError(s, action, "doctorNotAssigned", err.Error())
	case errors.Is(err, queue.ErrDoctorUnavailable), errors.Is(err, queue.ErrCapacityExceeded):
		h.emitError(s, action, "conflict", err.Error())
	default:
		h.log.Error().Err(err).Str("action", action).Msg("command failed")
		h.emitError(s, action, "internal", "internal error")
	}
}

func (h *CommandHandler) emitError(s *websocket.Session, action, code, message string) {
	h.hub.EmitTo(s, EventError, map[string]interface{}{
		"action":  action,
		"code":    code,
		"message": message,
	})
}
