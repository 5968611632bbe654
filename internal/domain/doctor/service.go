package doctor

import (
	"context"
	"fmt"
)

// ErrNotFound is returned when a doctor id does not resolve.
var ErrNotFound = fmt.Errorf("doctor not found")

// AvailabilityNotifier receives availability changes for real-time fan-out.
// Delivery is best-effort and must never fail the state change.
type AvailabilityNotifier interface {
	DoctorAvailabilityChanged(doctorID string, isAvailable bool)
}

type Service struct {
	doctors  Repository
	notifier AvailabilityNotifier
}

func NewService(doctors Repository, notifier AvailabilityNotifier) *Service {
	return &Service{doctors: doctors, notifier: notifier}
}

func (s *Service) Get(ctx context.Context, id string) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.List(ctx)
}

// SetAvailability toggles the availability flag and broadcasts the change to
// the doctor's channel.
func (s *Service) SetAvailability(ctx context.Context, id string, isAvailable bool) (*Doctor, error) {
	d, err := s.doctors.SetAvailability(ctx, id, isAvailable)
	if err != nil {
		return nil, fmt.Errorf("set availability for %s: %w", id, err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	if s.notifier != nil {
		s.notifier.DoctorAvailabilityChanged(d.ID, d.IsAvailable)
	}
	return d, nil
}

// Seed inserts the given doctors, skipping ids that already exist.
func (s *Service) Seed(ctx context.Context, roster []*Doctor) error {
	for _, d := range roster {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("seed doctor: id and name are required")
		}
		if err := s.doctors.Create(ctx, d); err != nil {
			return fmt.Errorf("seed doctor %s: %w", d.ID, err)
		}
	}
	return nil
}

// DefaultRoster returns the administrative seed roster.
func DefaultRoster() []*Doctor {
	return []*Doctor{
		{ID: "doc1", Name: "Dr. Abena Mensah", Specialization: "general", IsAvailable: true, AverageConsultation: 15, MaxDailyPatients: 50},
		{ID: "doc2", Name: "Dr. Kwame Boateng", Specialization: "cardiology", IsAvailable: true, AverageConsultation: 20, MaxDailyPatients: 30},
		{ID: "doc3", Name: "Dr. Efua Asante", Specialization: "dermatology", IsAvailable: true, AverageConsultation: 12, MaxDailyPatients: 40},
		{ID: "doc4", Name: "Dr. Yaw Darko", Specialization: "surgery", IsAvailable: false, AverageConsultation: 30, MaxDailyPatients: 15},
		{ID: "doc5", Name: "Dr. Ama Owusu", Specialization: "psychiatry", IsAvailable: true, AverageConsultation: 25, MaxDailyPatients: 20},
	}
}
