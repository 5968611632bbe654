package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
)

// Notifier receives the real-time consequences of committed queue mutations.
// Calls happen after the state change has been persisted; implementations
// must be non-blocking and must never return the failure to the caller.
type Notifier interface {
	QueueChanged(doctorID string, queue []*QueueEntry)
	QueueUpdate(doctorID string, patientID uuid.UUID, position, estimatedWaitMins int)
	PatientStatusUpdated(doctorID string, patientID uuid.UUID, status Status, reason string)
	ConsultationStarted(patient *QueueEntry, doc *doctor.Doctor)
	ConsultationCompleted(patient *QueueEntry, doc *doctor.Doctor)
	PatientRemoved(patient *QueueEntry, doc *doctor.Doctor, reason string)
}

type nopNotifier struct{}

func (nopNotifier) QueueChanged(string, []*QueueEntry)                       {}
func (nopNotifier) QueueUpdate(string, uuid.UUID, int, int)                  {}
func (nopNotifier) PatientStatusUpdated(string, uuid.UUID, Status, string)   {}
func (nopNotifier) ConsultationStarted(*QueueEntry, *doctor.Doctor)          {}
func (nopNotifier) ConsultationCompleted(*QueueEntry, *doctor.Doctor)        {}
func (nopNotifier) PatientRemoved(*QueueEntry, *doctor.Doctor, string)       {}

// Service is the queue orchestrator. Every mutating operation for a doctor
// runs under that doctor's lock, so aggregate reads (capacity, FIFO order,
// the single consulting entry) and the writes based on them never interleave.
type Service struct {
	entries   Repository
	doctors   doctor.Repository
	estimator *Estimator
	notifier  Notifier
	locks     *doctorLocks
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(entries Repository, doctors doctor.Repository, est *Estimator, notifier Notifier, retention time.Duration, log zerolog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if est == nil {
		est = NewEstimator()
	}
	return &Service{
		entries:   entries,
		doctors:   doctors,
		estimator: est,
		notifier:  notifier,
		locks:     newDoctorLocks(),
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) getDoctor(ctx context.Context, doctorID string) (*doctor.Doctor, error) {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", doctorID, err)
	}
	if d == nil {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

// Enqueue admits a patient to a doctor's queue. The duration estimate is
// computed once here and frozen on the entry.
func (s *Service) Enqueue(ctx context.Context, doctorID, name string) (*QueueEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name", "must not be empty")
	}
	if strings.TrimSpace(doctorID) == "" {
		return nil, newValidationError("doctor_id", "must not be empty")
	}

	unlock := s.locks.lock(doctorID)
	defer unlock()

	d, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !d.IsAvailable {
		return nil, ErrDoctorUnavailable
	}

	active, err := s.entries.CountActive(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("count active for %s: %w", doctorID, err)
	}
	if active >= d.MaxDailyPatients {
		return nil, ErrCapacityExceeded
	}

	waiting, err := s.entries.CountWaiting(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("count waiting for %s: %w", doctorID, err)
	}

	e := &QueueEntry{
		ID:                uuid.New(),
		Name:              name,
		DoctorID:          doctorID,
		Status:            StatusWaiting,
		EstimatedDuration: s.estimator.Estimate(d, waiting),
		JoinedAt:          s.now().UTC(),
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}
	e.Position = waiting + 1

	s.broadcastQueue(ctx, d)
	return e, nil
}

// Transition moves a patient to a new status. Any target label is accepted;
// the cross-entry invariants are enforced here rather than as a per-entry
// transition table: at most one consulting entry per doctor (the previous
// one is force-completed), and completing a consultation promotes the
// earliest waiting entry to next.
func (s *Service) Transition(ctx context.Context, patientID uuid.UUID, target Status, reason string) (*QueueEntry, error) {
	if !target.Valid() {
		return nil, newValidationError("status", fmt.Sprintf("unknown status %q", target))
	}

	e, err := s.entries.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	if e == nil {
		return nil, ErrPatientNotFound
	}

	unlock := s.locks.lock(e.DoctorID)
	defer unlock()

	// Re-read under the lock; the entry may have moved or been removed
	// between the lookup and the lock acquisition.
	e, err = s.entries.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	if e == nil {
		return nil, ErrPatientNotFound
	}

	d, err := s.getDoctor(ctx, e.DoctorID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if target == StatusConsulting {
		current, err := s.entries.FindConsulting(ctx, e.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("find consulting for %s: %w", e.DoctorID, err)
		}
		if current != nil && current.ID != e.ID {
			if err := s.forceComplete(ctx, current, d, now); err != nil {
				return nil, err
			}
		}
		if e.ConsultationStartedAt == nil {
			e.ConsultationStartedAt = &now
		}
	}
	if target == StatusCompleted && e.ConsultationEndedAt == nil {
		e.ConsultationEndedAt = &now
	}

	e.Status = target
	e.StatusReason = nilIfEmpty(reason)

	stored, err := s.entries.Update(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("update patient %s: %w", patientID, err)
	}
	if stored == nil {
		return nil, ErrPatientNotFound
	}

	s.notifier.PatientStatusUpdated(stored.DoctorID, stored.ID, stored.Status, reason)
	switch target {
	case StatusConsulting:
		s.notifier.ConsultationStarted(stored, d)
	case StatusCompleted:
		s.notifier.ConsultationCompleted(stored, d)
		if err := s.autoAdvance(ctx, d); err != nil {
			// Best-effort: the completion itself is committed.
			s.log.Error().Err(err).Str("doctor_id", d.ID).Msg("auto-advance failed")
		}
	}

	s.broadcastQueue(ctx, d)
	return stored, nil
}

// forceComplete closes out a lingering consulting entry so the single
// consulting invariant holds before another patient starts.
func (s *Service) forceComplete(ctx context.Context, e *QueueEntry, d *doctor.Doctor, now time.Time) error {
	e.Status = StatusCompleted
	if e.ConsultationEndedAt == nil {
		e.ConsultationEndedAt = &now
	}
	reason := "superseded by next consultation"
	e.StatusReason = &reason

	stored, err := s.entries.Update(ctx, e)
	if err != nil {
		return fmt.Errorf("force-complete %s: %w", e.ID, err)
	}
	if stored == nil {
		return nil
	}
	s.notifier.PatientStatusUpdated(stored.DoctorID, stored.ID, stored.Status, reason)
	s.notifier.ConsultationCompleted(stored, d)
	return nil
}

// autoAdvance promotes the earliest waiting entry to next after a
// consultation completes.
func (s *Service) autoAdvance(ctx context.Context, d *doctor.Doctor) error {
	waiting, err := s.entries.ListWaiting(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list waiting for %s: %w", d.ID, err)
	}
	if len(waiting) == 0 {
		return nil
	}

	head := waiting[0]
	head.Status = StatusNext
	reason := "previous consultation completed"
	head.StatusReason = &reason

	stored, err := s.entries.Update(ctx, head)
	if err != nil {
		return fmt.Errorf("promote %s: %w", head.ID, err)
	}
	if stored != nil {
		s.notifier.PatientStatusUpdated(stored.DoctorID, stored.ID, stored.Status, reason)
	}
	return nil
}

// Remove deletes a patient from the queue. A second removal of the same id
// reports ErrPatientNotFound.
func (s *Service) Remove(ctx context.Context, patientID uuid.UUID, reason string) (*QueueEntry, error) {
	e, err := s.entries.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	if e == nil {
		return nil, ErrPatientNotFound
	}

	unlock := s.locks.lock(e.DoctorID)
	defer unlock()

	deleted, err := s.entries.Delete(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("delete patient %s: %w", patientID, err)
	}
	if !deleted {
		return nil, ErrPatientNotFound
	}

	d, derr := s.doctors.GetByID(ctx, e.DoctorID)
	if derr != nil || d == nil {
		s.log.Warn().Str("doctor_id", e.DoctorID).Msg("removed patient for unknown doctor")
		return e, nil
	}

	s.notifier.PatientRemoved(e, d, reason)
	s.broadcastQueue(ctx, d)
	return e, nil
}

// ClearQueue deletes all of a doctor's entries in the given status. An empty
// status clears the waiting list; entries in every other status are
// untouched. Returns the number actually deleted.
func (s *Service) ClearQueue(ctx context.Context, doctorID string, status Status, reason string) (int, error) {
	if status == "" {
		status = StatusWaiting
	}
	if !status.Valid() {
		return 0, newValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	unlock := s.locks.lock(doctorID)
	defer unlock()

	d, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}

	all, err := s.entries.ListAll(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("list queue for %s: %w", doctorID, err)
	}
	var cleared []*QueueEntry
	for _, e := range all {
		if e.Status == status {
			cleared = append(cleared, e)
		}
	}

	n, err := s.entries.DeleteByStatus(ctx, doctorID, status)
	if err != nil {
		return 0, fmt.Errorf("clear queue for %s: %w", doctorID, err)
	}

	for _, e := range cleared {
		s.notifier.PatientRemoved(e, d, reason)
	}
	s.broadcastQueue(ctx, d)
	return n, nil
}

// Position reports a patient's FIFO rank. Only waiting entries have one;
// every other status reports position 0.
func (s *Service) Position(ctx context.Context, patientID uuid.UUID) (*PositionInfo, error) {
	e, err := s.entries.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	if e == nil {
		return nil, ErrPatientNotFound
	}

	info := &PositionInfo{PatientID: e.ID, Status: e.Status}
	if e.Status != StatusWaiting {
		return info, nil
	}

	waiting, err := s.entries.ListWaiting(ctx, e.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("list waiting for %s: %w", e.DoctorID, err)
	}
	for i, w := range waiting {
		if w.ID == e.ID {
			info.Position = i + 1
			break
		}
	}

	d, err := s.getDoctor(ctx, e.DoctorID)
	if err != nil {
		return nil, err
	}
	if info.Position > 0 {
		info.EstimatedWaitMins = (info.Position - 1) * d.AverageConsultation
	}
	return info, nil
}

// EstimatedWaitForNewArrival reports the wait a patient joining right now
// would face: (waiting count + 1) x the doctor's average consultation.
func (s *Service) EstimatedWaitForNewArrival(ctx context.Context, doctorID string) (int, error) {
	d, err := s.getDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	waiting, err := s.entries.CountWaiting(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("count waiting for %s: %w", doctorID, err)
	}
	return (waiting + 1) * d.AverageConsultation, nil
}

// Queue returns all of a doctor's entries in FIFO order with waiting
// positions annotated.
func (s *Service) Queue(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListAll(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list queue for %s: %w", doctorID, err)
	}
	annotatePositions(entries)
	return entries, nil
}

// Get returns a single entry with its position annotated.
func (s *Service) Get(ctx context.Context, patientID uuid.UUID) (*QueueEntry, error) {
	e, err := s.entries.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	if e == nil {
		return nil, ErrPatientNotFound
	}
	info, err := s.Position(ctx, patientID)
	if err != nil {
		return nil, err
	}
	e.Position = info.Position
	return e, nil
}

// Stats assembles the dashboard aggregate across all doctors.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	counts, err := s.entries.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	stats := &Stats{Doctors: make([]*DoctorStats, 0, len(doctors))}
	for _, d := range doctors {
		c := counts[d.ID]
		ds := &DoctorStats{
			DoctorID:   d.ID,
			DoctorName: d.Name,
			Waiting:    c[StatusWaiting],
			Consulting: c[StatusConsulting],
			Completed:  c[StatusCompleted],
		}
		ds.EstimatedWaitMins = (ds.Waiting + 1) * d.AverageConsultation
		stats.TotalWaiting += ds.Waiting
		stats.TotalConsulting += ds.Consulting
		stats.TotalCompleted += ds.Completed
		stats.Doctors = append(stats.Doctors, ds)
	}
	return stats, nil
}

// CleanupStale deletes completed entries whose consultation ended before the
// retention horizon.
func (s *Service) CleanupStale(ctx context.Context) (int, error) {
	horizon := s.now().UTC().Add(-s.retention)
	n, err := s.entries.DeleteStaleCompleted(ctx, horizon)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale entries: %w", err)
	}
	if n > 0 {
		s.log.Info().Int("deleted", n).Time("older_than", horizon).Msg("retention cleanup")
	}
	return n, nil
}

// broadcastQueue pushes the refreshed queue to the doctor channel and a
// per-patient position update to each waiting patient. Failures here are the
// notifier's problem; the state change is already committed.
func (s *Service) broadcastQueue(ctx context.Context, d *doctor.Doctor) {
	entries, err := s.entries.ListAll(ctx, d.ID)
	if err != nil {
		s.log.Error().Err(err).Str("doctor_id", d.ID).Msg("queue broadcast skipped")
		return
	}
	annotatePositions(entries)

	s.notifier.QueueChanged(d.ID, entries)
	for _, e := range entries {
		if e.Status != StatusWaiting {
			continue
		}
		s.notifier.QueueUpdate(d.ID, e.ID, e.Position, (e.Position-1)*d.AverageConsultation)
	}
}

// annotatePositions assigns 1-based ranks to waiting entries in FIFO order;
// entries in any other status get 0. Input must already be ordered by
// joined_at.
func annotatePositions(entries []*QueueEntry) {
	pos := 0
	for _, e := range entries {
		if e.Status == StatusWaiting {
			pos++
			e.Position = pos
		} else {
			e.Position = 0
		}
	}
}

func nilIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
