package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
)

func testDoctor() *doctor.Doctor {
	return &doctor.Doctor{
		ID:                  "doc1",
		Name:                "Dr. Abena Mensah",
		Specialization:      "general",
		IsAvailable:         true,
		AverageConsultation: 15,
		MaxDailyPatients:    50,
	}
}

// fakeClock returns a now func that advances one second per call, so
// joined_at timestamps are strictly increasing. It is safe for concurrent
// callers; the concurrency tests read it from several goroutines.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(docs ...*doctor.Doctor) (*Service, *memRepo, *recordingNotifier) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, newMemDoctorRepo(docs...), nil, notifier, 24*time.Hour, zerolog.Nop())
	svc.now = fakeClock()
	svc.estimator = newEstimatorAt(svc.now, 1)
	return svc, repo, notifier
}

func TestEnqueueAssignsFIFOPositions(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, err := svc.Enqueue(ctx, "doc1", "Ama")
	if err != nil {
		t.Fatalf("enqueue Ama: %v", err)
	}
	if ama.Position != 1 {
		t.Errorf("Ama position = %d, want 1", ama.Position)
	}
	if ama.Status != StatusWaiting {
		t.Errorf("Ama status = %s, want waiting", ama.Status)
	}
	if ama.EstimatedDuration < minEstimateMins || ama.EstimatedDuration > maxEstimateMins {
		t.Errorf("estimated duration %d outside [%d,%d]", ama.EstimatedDuration, minEstimateMins, maxEstimateMins)
	}

	wait, err := svc.EstimatedWaitForNewArrival(ctx, "doc1")
	if err != nil {
		t.Fatalf("wait estimate: %v", err)
	}
	if wait != 2*15 {
		t.Errorf("wait after one patient = %d, want 30", wait)
	}

	kofi, err := svc.Enqueue(ctx, "doc1", "Kofi")
	if err != nil {
		t.Fatalf("enqueue Kofi: %v", err)
	}
	if kofi.Position != 2 {
		t.Errorf("Kofi position = %d, want 2", kofi.Position)
	}
}

func TestEnqueueWaitEstimateProgression(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	// Empty queue: a patient arriving now would wait one average slot.
	wait, _ := svc.EstimatedWaitForNewArrival(ctx, "doc1")
	if wait != 15 {
		t.Errorf("wait with empty queue = %d, want 15", wait)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Ama"); err != nil {
		t.Fatal(err)
	}
	wait, _ = svc.EstimatedWaitForNewArrival(ctx, "doc1")
	if wait != 30 {
		t.Errorf("wait after Ama = %d, want 30", wait)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Kofi"); err != nil {
		t.Fatal(err)
	}
	wait, _ = svc.EstimatedWaitForNewArrival(ctx, "doc1")
	if wait != 45 {
		t.Errorf("wait after Kofi = %d, want 45", wait)
	}
}

func TestEnqueueValidation(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	var ve *ValidationError
	if _, err := svc.Enqueue(ctx, "doc1", "   "); !errors.As(err, &ve) {
		t.Errorf("blank name: got %v, want ValidationError", err)
	}
	if _, err := svc.Enqueue(ctx, "", "Ama"); !errors.As(err, &ve) {
		t.Errorf("blank doctor id: got %v, want ValidationError", err)
	}
	if _, err := svc.Enqueue(ctx, "ghost", "Ama"); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("unknown doctor: got %v, want ErrDoctorNotFound", err)
	}
}

func TestEnqueueUnavailableDoctor(t *testing.T) {
	d := testDoctor()
	d.IsAvailable = false
	svc, _, _ := newTestService(d)

	if _, err := svc.Enqueue(context.Background(), "doc1", "Ama"); !errors.Is(err, ErrDoctorUnavailable) {
		t.Errorf("got %v, want ErrDoctorUnavailable", err)
	}
}

func TestEnqueueAtCapacity(t *testing.T) {
	d := testDoctor()
	d.MaxDailyPatients = 2
	svc, repo, _ := newTestService(d)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "doc1", "Ama"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Kofi"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Yaa"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}

	// The failed enqueue must not have touched the waiting set.
	waiting, _ := repo.ListWaiting(ctx, "doc1")
	if len(waiting) != 2 {
		t.Errorf("waiting count after rejected enqueue = %d, want 2", len(waiting))
	}

	// Completed entries free capacity again.
	if _, err := svc.Transition(ctx, waiting[0].ID, StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Yaa"); err != nil {
		t.Errorf("enqueue after completion: %v", err)
	}
}

func TestSingleConsultingInvariant(t *testing.T) {
	svc, repo, notifier := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	kofi, _ := svc.Enqueue(ctx, "doc1", "Kofi")

	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, kofi.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}

	all, _ := repo.ListAll(ctx, "doc1")
	var consulting, completed int
	for _, e := range all {
		switch e.Status {
		case StatusConsulting:
			consulting++
		case StatusCompleted:
			completed++
			if e.ID != ama.ID {
				t.Errorf("completed entry is %s, want Ama (%s)", e.ID, ama.ID)
			}
		}
	}
	if consulting != 1 {
		t.Errorf("consulting count = %d, want exactly 1", consulting)
	}
	if completed != 1 {
		t.Errorf("completed count = %d, want 1 (forced)", completed)
	}

	if got := notifier.named("consultationCompleted"); len(got) == 0 {
		t.Error("forced completion was not broadcast")
	}
}

func TestCompleteAutoAdvancesEarliestWaiting(t *testing.T) {
	svc, repo, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	kofi, _ := svc.Enqueue(ctx, "doc1", "Kofi")
	yaa, _ := svc.Enqueue(ctx, "doc1", "Yaa")

	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, ama.ID, StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	stored, _ := repo.GetByID(ctx, kofi.ID)
	if stored.Status != StatusNext {
		t.Errorf("Kofi status = %s, want next (earliest waiting auto-advances)", stored.Status)
	}
	later, _ := repo.GetByID(ctx, yaa.ID)
	if later.Status != StatusWaiting {
		t.Errorf("Yaa status = %s, want waiting", later.Status)
	}
}

func TestCompleteWithEmptyQueueNoAdvance(t *testing.T) {
	svc, repo, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, ama.ID, StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	all, _ := repo.ListAll(ctx, "doc1")
	if len(all) != 1 || all[0].Status != StatusCompleted {
		t.Fatalf("unexpected state after sole completion: %+v", all)
	}
	if all[0].ConsultationEndedAt == nil {
		t.Error("consultation_ended_at not set on completion")
	}
}

func TestPositionScenario(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	kofi, _ := svc.Enqueue(ctx, "doc1", "Kofi")

	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}

	amaPos, err := svc.Position(ctx, ama.ID)
	if err != nil {
		t.Fatal(err)
	}
	if amaPos.Position != 0 {
		t.Errorf("consulting Ama position = %d, want 0", amaPos.Position)
	}
	if amaPos.Status != StatusConsulting {
		t.Errorf("Ama status = %s, want consulting", amaPos.Status)
	}

	kofiPos, err := svc.Position(ctx, kofi.ID)
	if err != nil {
		t.Fatal(err)
	}
	if kofiPos.Position != 1 {
		t.Errorf("Kofi position after Ama starts = %d, want 1", kofiPos.Position)
	}
	if kofiPos.EstimatedWaitMins != 0 {
		t.Errorf("Kofi wait at position 1 = %d, want 0", kofiPos.EstimatedWaitMins)
	}
}

func TestPositionsAreContiguous(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	for _, name := range []string{"Ama", "Kofi", "Yaa", "Kwesi"} {
		if _, err := svc.Enqueue(ctx, "doc1", name); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := svc.Queue(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	want := 1
	for _, e := range entries {
		if e.Status != StatusWaiting {
			continue
		}
		if e.Position != want {
			t.Errorf("position = %d, want %d (contiguous 1..N)", e.Position, want)
		}
		want++
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ama, _ := svc.Enqueue(context.Background(), "doc1", "Ama")

	var ve *ValidationError
	if _, err := svc.Transition(context.Background(), ama.ID, Status("vanished"), ""); !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestTransitionPermissiveCorrections(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	if _, err := svc.Transition(ctx, ama.ID, StatusCompleted, "walked out"); err != nil {
		t.Fatal(err)
	}
	// Manual correction back to waiting is allowed.
	e, err := svc.Transition(ctx, ama.ID, StatusWaiting, "re-admitted by mistake correction")
	if err != nil {
		t.Fatalf("completed -> waiting correction: %v", err)
	}
	if e.Status != StatusWaiting {
		t.Errorf("status = %s, want waiting", e.Status)
	}
}

func TestRemoveIsIdempotentViaNotFound(t *testing.T) {
	svc, _, notifier := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")

	if _, err := svc.Remove(ctx, ama.ID, "no longer needed"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if _, err := svc.Remove(ctx, ama.ID, ""); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("second remove: got %v, want ErrPatientNotFound", err)
	}
	if _, err := svc.Remove(ctx, uuid.New(), ""); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("remove unknown id: got %v, want ErrPatientNotFound", err)
	}

	removed := notifier.named("patientRemoved")
	if len(removed) != 1 || removed[0].reason != "no longer needed" {
		t.Errorf("patientRemoved events = %+v, want one with reason", removed)
	}
}

func TestClearQueueRemovesOnlyWaiting(t *testing.T) {
	svc, repo, _ := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	if _, err := svc.Enqueue(ctx, "doc1", "Kofi"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(ctx, "doc1", "Yaa"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}

	// Empty filter defaults to the waiting list.
	n, err := svc.ClearQueue(ctx, "doc1", "", "clinic closing early")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("cleared = %d, want 2", n)
	}

	all, _ := repo.ListAll(ctx, "doc1")
	if len(all) != 1 || all[0].Status != StatusConsulting {
		t.Errorf("remaining entries = %+v, want only the consulting one", all)
	}
}

func TestClearQueueStatusFilter(t *testing.T) {
	svc, repo, notifier := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	kofi, _ := svc.Enqueue(ctx, "doc1", "Kofi")
	if _, err := svc.Transition(ctx, ama.ID, StatusCompleted, "walked out"); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ClearQueue(ctx, "doc1", StatusCompleted, "end-of-day archive")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cleared = %d, want 1", n)
	}

	// Only the completed entry is gone; the waiting one (auto-advanced to
	// next by the completion) is untouched.
	if e, _ := repo.GetByID(ctx, ama.ID); e != nil {
		t.Error("completed entry survived a completed-filter clear")
	}
	if e, _ := repo.GetByID(ctx, kofi.ID); e == nil {
		t.Error("non-completed entry was deleted by a completed-filter clear")
	}

	removed := notifier.named("patientRemoved")
	if len(removed) != 1 || removed[0].patientID != ama.ID {
		t.Errorf("patientRemoved events = %+v, want one for the completed entry", removed)
	}
}

func TestClearQueueRejectsUnknownStatus(t *testing.T) {
	svc, repo, _ := newTestService(testDoctor())
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "doc1", "Ama"); err != nil {
		t.Fatal(err)
	}

	var ve *ValidationError
	if _, err := svc.ClearQueue(ctx, "doc1", Status("vanished"), "typo"); !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError", err)
	}
	waiting, _ := repo.ListWaiting(ctx, "doc1")
	if len(waiting) != 1 {
		t.Errorf("waiting count after rejected clear = %d, want 1", len(waiting))
	}
}

func TestClearQueueUnknownDoctor(t *testing.T) {
	svc, _, _ := newTestService(testDoctor())
	if _, err := svc.ClearQueue(context.Background(), "ghost", "", "x"); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("got %v, want ErrDoctorNotFound", err)
	}
}

func TestBroadcastsAfterEnqueue(t *testing.T) {
	svc, _, notifier := newTestService(testDoctor())
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	kofi, _ := svc.Enqueue(ctx, "doc1", "Kofi")

	if got := notifier.named("queueChanged"); len(got) != 2 {
		t.Errorf("queueChanged broadcasts = %d, want 2", len(got))
	}

	// The second enqueue re-emits positions for both waiting patients.
	updates := notifier.named("queueUpdate")
	byPatient := map[uuid.UUID]recordedEvent{}
	for _, u := range updates {
		byPatient[u.patientID] = u
	}
	if u := byPatient[ama.ID]; u.position != 1 || u.waitMins != 0 {
		t.Errorf("Ama update = pos %d wait %d, want 1/0", u.position, u.waitMins)
	}
	if u := byPatient[kofi.ID]; u.position != 2 || u.waitMins != 15 {
		t.Errorf("Kofi update = pos %d wait %d, want 2/15", u.position, u.waitMins)
	}
}

func TestStatsAggregates(t *testing.T) {
	d2 := &doctor.Doctor{ID: "doc2", Name: "Dr. Kwame Boateng", Specialization: "cardiology",
		IsAvailable: true, AverageConsultation: 20, MaxDailyPatients: 30}
	svc, _, _ := newTestService(testDoctor(), d2)
	ctx := context.Background()

	ama, _ := svc.Enqueue(ctx, "doc1", "Ama")
	if _, err := svc.Enqueue(ctx, "doc1", "Kofi"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(ctx, "doc2", "Yaa"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, ama.ID, StatusConsulting, ""); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalWaiting != 2 || stats.TotalConsulting != 1 || stats.TotalCompleted != 0 {
		t.Errorf("totals = %d/%d/%d, want 2/1/0",
			stats.TotalWaiting, stats.TotalConsulting, stats.TotalCompleted)
	}
	if len(stats.Doctors) != 2 {
		t.Fatalf("doctor stats rows = %d, want 2", len(stats.Doctors))
	}
}

func TestCleanupStaleDeletesOldCompleted(t *testing.T) {
	svc, repo, _ := newTestService(testDoctor())
	ctx := context.Background()

	old := svc.now().Add(-48 * time.Hour)
	stale := &QueueEntry{ID: uuid.New(), Name: "Stale", DoctorID: "doc1",
		Status: StatusCompleted, EstimatedDuration: 15, JoinedAt: old, ConsultationEndedAt: &old}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatal(err)
	}
	stale.Status = StatusCompleted
	if _, err := repo.Update(ctx, stale); err != nil {
		t.Fatal(err)
	}
	fresh, _ := svc.Enqueue(ctx, "doc1", "Fresh")

	n, err := svc.CleanupStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if e, _ := repo.GetByID(ctx, fresh.ID); e == nil {
		t.Error("fresh entry was deleted by cleanup")
	}
	if e, _ := repo.GetByID(ctx, stale.ID); e != nil {
		t.Error("stale completed entry survived cleanup")
	}
}

func TestConcurrentEnqueueRespectsCapacity(t *testing.T) {
	d := testDoctor()
	d.MaxDailyPatients = 5
	svc, repo, _ := newTestService(d)
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_, _ = svc.Enqueue(ctx, "doc1", "patient")
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	active, _ := repo.CountActive(ctx, "doc1")
	if active > 5 {
		t.Errorf("active = %d, capacity 5 was breached under concurrency", active)
	}
}

// Enqueues for different doctors take different keyed locks, so the shared
// estimator must tolerate concurrent callers.
func TestConcurrentEnqueueAcrossDoctors(t *testing.T) {
	d2 := &doctor.Doctor{ID: "doc2", Name: "Dr. Kwame Boateng", Specialization: "cardiology",
		IsAvailable: true, AverageConsultation: 20, MaxDailyPatients: 50}
	svc, repo, _ := newTestService(testDoctor(), d2)
	ctx := context.Background()

	done := make(chan error)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := svc.Enqueue(ctx, "doc1", "patient")
			done <- err
		}()
		go func() {
			_, err := svc.Enqueue(ctx, "doc2", "patient")
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent enqueue: %v", err)
		}
	}

	for _, id := range []string{"doc1", "doc2"} {
		waiting, _ := repo.ListWaiting(ctx, id)
		if len(waiting) != 10 {
			t.Errorf("waiting for %s = %d, want 10", id, len(waiting))
		}
	}
}
