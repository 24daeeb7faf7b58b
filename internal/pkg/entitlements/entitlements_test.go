package entitlements

import (
	"testing"

	"github.com/FitLedger/FitLedger/app/models"
)

func TestEvaluateBoundary(t *testing.T) {
	max := 3
	tests := []struct {
		count        int
		wantReached  bool
		wantRemained int
	}{
		{count: 0, wantReached: false, wantRemained: 3},
		{count: 2, wantReached: false, wantRemained: 1},
		{count: 3, wantReached: true, wantRemained: 0},
		{count: 4, wantReached: true, wantRemained: 0},
	}

	for _, tt := range tests {
		got := Evaluate(tt.count, &max)
		if got.LimitReached != tt.wantReached {
			t.Fatalf("Evaluate(%d, 3).LimitReached = %v, want %v", tt.count, got.LimitReached, tt.wantReached)
		}
		if got.Remaining == nil || *got.Remaining != tt.wantRemained {
			t.Fatalf("Evaluate(%d, 3).Remaining = %v, want %d", tt.count, got.Remaining, tt.wantRemained)
		}
	}
}

func TestEvaluateUnlimited(t *testing.T) {
	got := Evaluate(1000, nil)
	if got.LimitReached {
		t.Fatalf("expected no limit for nil max")
	}
	if got.MaxAllowed != nil || got.Remaining != nil {
		t.Fatalf("expected nil max/remaining for unlimited")
	}
}

func TestLimitForFreeFallback(t *testing.T) {
	free := &models.SubscriptionPlan{Name: "Free", IsDefault: true}
	if got := LimitFor(free, ResourceWorkouts); got == nil || *got != DefaultFreeMaxWorkouts {
		t.Fatalf("expected free plan workout fallback limit, got %v", got)
	}
	if got := LimitFor(free, ResourceCustomExercises); got == nil || *got != DefaultFreeMaxCustomExercises {
		t.Fatalf("expected free plan exercise fallback limit, got %v", got)
	}

	paid := &models.SubscriptionPlan{Name: "Pro"}
	if got := LimitFor(paid, ResourceWorkouts); got != nil {
		t.Fatalf("expected unlimited workouts for paid plan without explicit limit, got %v", got)
	}
}

func TestParseResource(t *testing.T) {
	if r, ok := ParseResource(" Workouts "); !ok || r != ResourceWorkouts {
		t.Fatalf("ParseResource failed for workouts: %v %v", r, ok)
	}
	if _, ok := ParseResource("images"); ok {
		t.Fatalf("expected unknown resource to be rejected")
	}
}
