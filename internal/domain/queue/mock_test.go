package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
)

// memRepo is a map-backed Repository for orchestrator tests.
type memRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*QueueEntry
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[uuid.UUID]*QueueEntry)}
}

func copyEntry(e *QueueEntry) *QueueEntry {
	c := *e
	return &c
}

func (r *memRepo) Create(_ context.Context, e *QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.CreatedAt = e.JoinedAt
	e.UpdatedAt = e.JoinedAt
	r.entries[e.ID] = copyEntry(e)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	return copyEntry(e), nil
}

func (r *memRepo) sorted(doctorID string, filter func(*QueueEntry) bool) []*QueueEntry {
	var out []*QueueEntry
	for _, e := range r.entries {
		if e.DoctorID == doctorID && (filter == nil || filter(e)) {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *memRepo) ListWaiting(_ context.Context, doctorID string) ([]*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(doctorID, func(e *QueueEntry) bool { return e.Status == StatusWaiting }), nil
}

func (r *memRepo) ListAll(_ context.Context, doctorID string) ([]*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(doctorID, nil), nil
}

func (r *memRepo) CountWaiting(_ context.Context, doctorID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.Status == StatusWaiting {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountActive(_ context.Context, doctorID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.Status != StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) FindConsulting(_ context.Context, doctorID string) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.Status == StatusConsulting {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (r *memRepo) Update(_ context.Context, e *QueueEntry) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[e.ID]
	if !ok {
		return nil, nil
	}
	cur.Status = e.Status
	cur.ConsultationStartedAt = e.ConsultationStartedAt
	cur.ConsultationEndedAt = e.ConsultationEndedAt
	cur.StatusReason = e.StatusReason
	cur.UpdatedAt = time.Now()
	return copyEntry(cur), nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

func (r *memRepo) DeleteByStatus(_ context.Context, doctorID string, status Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if e.DoctorID == doctorID && e.Status == status {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeleteStaleCompleted(_ context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if e.Status == StatusCompleted && e.ConsultationEndedAt != nil && e.ConsultationEndedAt.Before(olderThan) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountByStatus(_ context.Context) (map[string]map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[Status]int)
	for _, e := range r.entries {
		if out[e.DoctorID] == nil {
			out[e.DoctorID] = make(map[Status]int)
		}
		out[e.DoctorID][e.Status]++
	}
	return out, nil
}

// memDoctorRepo is a map-backed doctor.Repository.
type memDoctorRepo struct {
	mu      sync.Mutex
	doctors map[string]*doctor.Doctor
}

func newMemDoctorRepo(docs ...*doctor.Doctor) *memDoctorRepo {
	r := &memDoctorRepo{doctors: make(map[string]*doctor.Doctor)}
	for _, d := range docs {
		r.doctors[d.ID] = d
	}
	return r
}

func (r *memDoctorRepo) Create(_ context.Context, d *doctor.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[d.ID]; !ok {
		r.doctors[d.ID] = d
	}
	return nil
}

func (r *memDoctorRepo) GetByID(_ context.Context, id string) (*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (r *memDoctorRepo) List(_ context.Context) ([]*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*doctor.Doctor
	for _, d := range r.doctors {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDoctorRepo) SetAvailability(_ context.Context, id string, isAvailable bool) (*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, nil
	}
	d.IsAvailable = isAvailable
	c := *d
	return &c, nil
}

// recordedEvent captures one notifier call for assertions.
type recordedEvent struct {
	name      string
	doctorID  string
	patientID uuid.UUID
	status    Status
	reason    string
	position  int
	waitMins  int
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) record(e recordedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) QueueChanged(doctorID string, _ []*QueueEntry) {
	n.record(recordedEvent{name: "queueChanged", doctorID: doctorID})
}

func (n *recordingNotifier) QueueUpdate(doctorID string, patientID uuid.UUID, position, waitMins int) {
	n.record(recordedEvent{name: "queueUpdate", doctorID: doctorID, patientID: patientID, position: position, waitMins: waitMins})
}

func (n *recordingNotifier) PatientStatusUpdated(doctorID string, patientID uuid.UUID, status Status, reason string) {
	n.record(recordedEvent{name: "patientStatusUpdated", doctorID: doctorID, patientID: patientID, status: status, reason: reason})
}

func (n *recordingNotifier) ConsultationStarted(p *QueueEntry, d *doctor.Doctor) {
	n.record(recordedEvent{name: "consultationStarted", doctorID: d.ID, patientID: p.ID})
}

func (n *recordingNotifier) ConsultationCompleted(p *QueueEntry, d *doctor.Doctor) {
	n.record(recordedEvent{name: "consultationCompleted", doctorID: d.ID, patientID: p.ID})
}

func (n *recordingNotifier) PatientRemoved(p *QueueEntry, d *doctor.Doctor, reason string) {
	n.record(recordedEvent{name: "patientRemoved", doctorID: d.ID, patientID: p.ID, reason: reason})
}

func (n *recordingNotifier) named(name string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}
