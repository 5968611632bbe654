package queue

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/KennyWestKhan/medPharma-Queue-Management-Backend/internal/domain/doctor"
)

const (
	minEstimateMins = 5
	maxEstimateMins = 60
)

var specializationFactors = map[string]float64{
	"surgery":     1.5,
	"psychiatry":  1.3,
	"cardiology":  1.2,
	"general":     1.0,
	"dermatology": 0.9,
}

// experienceFactors is a per-doctor tuning table seeded from historical
// consultation data. Unknown doctors fall back to 1.0.
var experienceFactors = map[string]float64{
	"doc1": 0.9,
	"doc2": 1.0,
	"doc3": 0.95,
	"doc4": 1.1,
	"doc5": 1.0,
}

// Estimator computes a consultation duration estimate at enqueue time. The
// value is frozen on the entry and never recomputed. now and rng are
// injectable so tests can pin the wall clock and the jitter. The mutex
// guards rng: enqueues for different doctors run concurrently and *rand.Rand
// is not safe for concurrent use.
type Estimator struct {
	now func() time.Time
	mu  sync.Mutex
	rng *rand.Rand
}

func NewEstimator() *Estimator {
	return &Estimator{
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func newEstimatorAt(now func() time.Time, seed int64) *Estimator {
	return &Estimator{now: now, rng: rand.New(rand.NewSource(seed))}
}

// Estimate returns minutes in [5, 60]:
// base x specialization x timeOfDay x dayOfWeek x queueLength x experience,
// plus uniform jitter in [-2, +2], rounded to the nearest integer.
func (e *Estimator) Estimate(d *doctor.Doctor, queueLength int) int {
	base := float64(d.AverageConsultation)
	if base <= 0 {
		base = float64(minEstimateMins)
	}

	v := base *
		specializationFactor(d.Specialization) *
		timeOfDayFactor(e.now().Hour()) *
		dayOfWeekFactor(e.now().Weekday()) *
		queueLengthFactor(queueLength) *
		experienceFactor(d.ID)

	v += e.jitter()

	mins := int(math.Round(v))
	if mins < minEstimateMins {
		return minEstimateMins
	}
	if mins > maxEstimateMins {
		return maxEstimateMins
	}
	return mins
}

// jitter draws a uniform value in [-2, +2) minutes.
func (e *Estimator) jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()*4 - 2
}

func specializationFactor(label string) float64 {
	if f, ok := specializationFactors[label]; ok {
		return f
	}
	return 1.0
}

func experienceFactor(doctorID string) float64 {
	if f, ok := experienceFactors[doctorID]; ok {
		return f
	}
	return 1.0
}

// timeOfDayFactor treats mid-day as the efficient baseline; early morning and
// evening consultations run longer.
func timeOfDayFactor(hour int) float64 {
	switch {
	case hour < 9:
		return 1.15
	case hour < 12:
		return 1.05
	case hour < 15:
		return 1.0
	case hour < 18:
		return 1.05
	default:
		return 1.2
	}
}

// dayOfWeekFactor favors mid-week as the baseline; Mondays and weekends
// carry heavier caseloads per visit.
func dayOfWeekFactor(day time.Weekday) float64 {
	switch day {
	case time.Tuesday, time.Wednesday, time.Thursday:
		return 1.0
	case time.Monday, time.Friday:
		return 1.1
	default:
		return 1.2
	}
}

// queueLengthFactor compresses estimates slightly as the queue grows.
func queueLengthFactor(length int) float64 {
	switch {
	case length <= 2:
		return 1.0
	case length <= 5:
		return 0.95
	case length <= 10:
		return 0.9
	default:
		return 0.85
	}
}
