package entitlements

import (
	"strings"

	"github.com/FitLedger/FitLedger/app/models"
)

// Resource identifies a countable, limitable resource type.
type Resource string

const (
	ResourceWorkouts        Resource = "workouts"
	ResourceCustomExercises Resource = "custom_exercises"
)

// Fallback limits applied when a default plan row carries no explicit limit.
const (
	DefaultFreeMaxWorkouts        = 3
	DefaultFreeMaxCustomExercises = 5
)

// ParseResource maps the client-supplied resource name onto a known Resource.
func ParseResource(s string) (Resource, bool) {
	switch Resource(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceWorkouts:
		return ResourceWorkouts, true
	case ResourceCustomExercises:
		return ResourceCustomExercises, true
	default:
		return "", false
	}
}

// LimitFor returns the numeric limit a plan imposes on a resource. A nil
// result means unlimited; that only applies to paid plans, the default plan
// always resolves to a concrete number.
func LimitFor(plan *models.SubscriptionPlan, r Resource) *int {
	var limit *int
	switch r {
	case ResourceWorkouts:
		limit = plan.MaxWorkouts
	case ResourceCustomExercises:
		limit = plan.MaxCustomExercises
	}
	if limit == nil && plan.IsFree() {
		d := defaultFreeLimit(r)
		return &d
	}
	return limit
}

func defaultFreeLimit(r Resource) int {
	switch r {
	case ResourceCustomExercises:
		return DefaultFreeMaxCustomExercises
	default:
		return DefaultFreeMaxWorkouts
	}
}

// LimitCheck is the result of evaluating a resource count against a plan limit.
type LimitCheck struct {
	LimitReached bool `json:"limit_reached"`
	CurrentCount int  `json:"current_count"`
	MaxAllowed   *int `json:"max_allowed"` // nil = unlimited
	Remaining    *int `json:"remaining"`   // nil = unlimited
}

// Evaluate applies the inclusive boundary: the Nth item is allowed, the
// N+1th is not, so callers must check before creating a resource.
// count == max therefore reports the limit as reached.
func Evaluate(count int, max *int) LimitCheck {
	if max == nil {
		return LimitCheck{CurrentCount: count}
	}
	remaining := *max - count
	if remaining < 0 {
		remaining = 0
	}
	return LimitCheck{
		LimitReached: count >= *max,
		CurrentCount: count,
		MaxAllowed:   max,
		Remaining:    &remaining,
	}
}
