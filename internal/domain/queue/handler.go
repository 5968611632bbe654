package queue

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/queue/patients", h.Enqueue)
	api.GET("/queue/patients/:id", h.GetPatient)
	api.PATCH("/queue/patients/:id/status", h.UpdateStatus)
	api.DELETE("/queue/patients/:id", h.RemovePatient)
	api.POST("/queue/cleanup", h.Cleanup)

	api.GET("/doctors/:id/queue", h.DoctorQueue)
	api.GET("/doctors/:id/wait", h.EstimatedWait)
	api.DELETE("/doctors/:id/queue", h.ClearQueue)

	api.GET("/stats", h.Stats)
}

// httpError maps domain errors onto transport status codes. Infrastructure
// failures fall through as 500s.
func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDoctorUnavailable), errors.Is(err, ErrCapacityExceeded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parsePatientID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

type enqueueRequest struct {
	DoctorID string `json:"doctor_id"`
	Name     string `json:"name"`
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Enqueue(c.Request().Context(), req.DoctorID, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parsePatientID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	info, err := h.svc.Position(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient":                e,
		"position":               info.Position,
		"estimated_wait_minutes": info.EstimatedWaitMins,
	})
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parsePatientID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Transition(c.Request().Context(), id, Status(req.Status), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

type removeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RemovePatient(c echo.Context) error {
	id, err := parsePatientID(c)
	if err != nil {
		return err
	}
	var req removeRequest
	_ = c.Bind(&req) // body is optional
	e, err := h.svc.Remove(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"removed": true, "patient": e})
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	entries, err := h.svc.Queue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if entries == nil {
		entries = []*QueueEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"queue": entries})
}

func (h *Handler) EstimatedWait(c echo.Context) error {
	mins, err := h.svc.EstimatedWaitForNewArrival(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id":              c.Param("id"),
		"estimated_wait_minutes": mins,
	})
}

type clearRequest struct {
	ConfirmationToken string `json:"confirmation_token"`
	Justification     string `json:"justification"`
	Status            string `json:"status"`
}

// ClearQueue is destructive and requires an explicit confirmation token so a
// stray DELETE cannot wipe a waiting room.
func (h *Handler) ClearQueue(c echo.Context) error {
	doctorID := c.Param("id")
	var req clearRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	expected := fmt.Sprintf("CONFIRM_CLEAR_%s", doctorID)
	if req.ConfirmationToken != expected {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("confirmation token mismatch: expected %s", expected))
	}
	if req.Justification == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "justification is required")
	}

	n, err := h.svc.ClearQueue(c.Request().Context(), doctorID, Status(req.Status), req.Justification)
	if err != nil {
		return httpError(err)
	}
	h.log.Warn().Str("doctor_id", doctorID).Int("removed", n).
		Str("status", req.Status).
		Str("justification", req.Justification).Msg("queue cleared")
	return c.JSON(http.StatusOK, map[string]interface{}{"cleared": n})
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Cleanup(c echo.Context) error {
	n, err := h.svc.CleanupStale(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": n})
}
