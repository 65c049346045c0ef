package services

import (
	"math"
	"time"

	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
)

// ScorerConfig holds the priority formula weights. The shape of the
// formula is fixed; every constant here is tunable.
type ScorerConfig struct {
	CategoryWeights map[coursework.Category]float64
	DefaultWeight   float64
	EffortWeight    float64
	// EffortSaturationMinutes is where effortFactor flattens out; very
	// large estimates stop raising the score past this point.
	EffortSaturationMinutes int
	// NoDueDateFactor replaces proximityFactor for undated work.
	NoDueDateFactor float64
	// UrgencyMargin treats a deadline as arriving this much earlier than
	// its literal value.
	UrgencyMargin time.Duration
	// GradeRescueThreshold and GradeRescueMultiplier boost work for major
	// courses whose grade slipped below the threshold.
	GradeRescueThreshold  float64
	GradeRescueMultiplier float64
	// Energy multiplier shape: deep work is discounted below the low
	// threshold and boosted above the high one.
	EnergyLowThreshold  profile.EnergyLevel
	EnergyHighThreshold profile.EnergyLevel
	DeepWorkLowEnergy   float64
	DeepWorkHighEnergy  float64
	LightWorkLowEnergy  float64
}

// DefaultScorerConfig returns the default weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		CategoryWeights: map[coursework.Category]float64{
			coursework.CategoryExamPrep:   1.5,
			coursework.CategoryProject:    1.3,
			coursework.CategoryProblemSet: 1.1,
			coursework.CategoryEssay:      1.2,
			coursework.CategoryReading:    0.8,
			coursework.CategoryAdmin:      0.5,
		},
		DefaultWeight:           1.0,
		EffortWeight:            0.3,
		EffortSaturationMinutes: 600,
		NoDueDateFactor:         0.3,
		UrgencyMargin:           24 * time.Hour,
		GradeRescueThreshold:    70.0,
		GradeRescueMultiplier:   1.5,
		EnergyLowThreshold:      4,
		EnergyHighThreshold:     8,
		DeepWorkLowEnergy:       0.5,
		DeepWorkHighEnergy:      1.2,
		LightWorkLowEnergy:      1.1,
	}
}

// PriorityScorer computes work item priority. It is a pure function of
// its inputs: no clock reads, no storage access.
type PriorityScorer struct {
	config ScorerConfig
}

// NewPriorityScorer creates a scorer with the given weights.
func NewPriorityScorer(config ScorerConfig) *PriorityScorer {
	return &PriorityScorer{config: config}
}

// Score computes the priority of a work item at the given instant. The
// course may be nil when grade metadata is unavailable.
func (s *PriorityScorer) Score(item *coursework.WorkItem, course *coursework.Course, now time.Time) float64 {
	weight, ok := s.config.CategoryWeights[item.Category]
	if !ok {
		weight = s.config.DefaultWeight
	}

	proximity := s.config.NoDueDateFactor
	if item.DueAt != nil {
		proximity = s.proximityFactor(*item.DueAt, now)
	}

	score := weight*proximity + s.config.EffortWeight*s.effortFactor(item.EstimateMinutes)

	if s.IsGradeRescue(course) {
		score *= s.config.GradeRescueMultiplier
	}

	return score
}

// IsGradeRescue reports whether work for the course gets the struggling
// major-course boost.
func (s *PriorityScorer) IsGradeRescue(course *coursework.Course) bool {
	return course != nil && course.Major && course.HasGrade() &&
		course.CurrentGrade < s.config.GradeRescueThreshold
}

// proximityFactor is 1/(daysUntilDue+1), with the urgency margin pulling
// the deadline closer. Past-due work clamps to the maximum factor.
func (s *PriorityScorer) proximityFactor(dueAt, now time.Time) float64 {
	effective := dueAt.Add(-s.config.UrgencyMargin)
	days := effective.Sub(now).Hours() / 24
	if days < 0 {
		days = 0
	}
	return 1 / (days + 1)
}

// effortFactor grows with the estimate and saturates at the configured
// ceiling.
func (s *PriorityScorer) effortFactor(estimateMinutes int) float64 {
	if estimateMinutes <= 0 {
		return 0
	}
	sat := float64(s.config.EffortSaturationMinutes)
	return math.Min(float64(estimateMinutes), sat) / sat
}

// EnergyMultiplier scales a move's priority by how well the category fits
// the user's current energy. Deep work is discounted when energy is low
// and boosted when it is high; light work gets a nudge when energy is low
// so tired users are steered toward it.
func (s *PriorityScorer) EnergyMultiplier(level profile.EnergyLevel, category coursework.Category) float64 {
	if category.IsDeepWork() {
		switch {
		case level <= s.config.EnergyLowThreshold:
			return s.config.DeepWorkLowEnergy
		case level >= s.config.EnergyHighThreshold:
			return s.config.DeepWorkHighEnergy
		default:
			return 1.0
		}
	}
	if level <= s.config.EnergyLowThreshold {
		return s.config.LightWorkLowEnergy
	}
	return 1.0
}
