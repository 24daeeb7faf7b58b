package subscription

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// ErrPlanNotFound is returned for administrative changes to unknown plans.
var ErrPlanNotFound = errors.New("subscription plan not found")

// Service owns the expiration sweep and every read of subscription state.
// Expiration is evaluated lazily: each read first normalizes elapsed rows,
// so the policy behaves as if continuously enforced without a background
// scheduler.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a subscription service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a subscription service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// GetEffectiveSubscription sweeps elapsed periods and returns the user's
// effective subscription view. Users without a current paid period get the
// virtual free-plan snapshot instead of an error.
func (s *Service) GetEffectiveSubscription(ctx context.Context, userID uint) (*Snapshot, error) {
	_ = ctx
	now := s.now()

	if _, err := s.repo.ExpireElapsed(userID, now); err != nil {
		return nil, err
	}

	subs, err := s.repo.CurrentSubscriptions(userID, now)
	if err != nil {
		return nil, err
	}

	usage, err := s.repo.CountUsage(userID)
	if err != nil {
		return nil, err
	}

	if len(subs) == 0 {
		free, err := s.repo.GetDefaultPlan()
		if err != nil {
			return nil, err
		}
		return s.freeSnapshot(free, usage), nil
	}

	if len(subs) > 1 {
		// More than one concurrently-active row should be structurally
		// impossible; self-heal by preferring the furthest-expiring row.
		log.Printf("subscription: integrity warning: user %d has %d active rows, using furthest end_date", userID, len(subs))
	}

	sub := subs[0]
	days := daysRemaining(*sub.EndDate, now)
	start := sub.StartDate
	return &Snapshot{
		PlanID:        sub.PlanID,
		PlanName:      sub.Plan.Name,
		Status:        sub.Status,
		StartDate:     &start,
		EndDate:       sub.EndDate,
		DaysRemaining: &days,
		AutoRenew:     sub.AutoRenew,
		Entitlements: Entitlements{
			MaxWorkouts:        sub.Plan.MaxWorkouts,
			MaxCustomExercises: sub.Plan.MaxCustomExercises,
			AdvancedStats:      sub.Plan.AdvancedStats,
			CloudBackup:        sub.Plan.CloudBackup,
			AdFree:             sub.Plan.AdFree,
		},
		Usage: usage,
	}, nil
}

// CheckLimit evaluates a resource count against the user's effective plan.
// It goes through the sweep implicitly so limits are never evaluated against
// a stale, already-elapsed plan.
func (s *Service) CheckLimit(ctx context.Context, userID uint, resource entitlements.Resource) (*entitlements.LimitCheck, error) {
	_ = ctx
	now := s.now()

	if _, err := s.repo.ExpireElapsed(userID, now); err != nil {
		return nil, err
	}

	subs, err := s.repo.CurrentSubscriptions(userID, now)
	if err != nil {
		return nil, err
	}

	var plan *models.SubscriptionPlan
	if len(subs) > 0 {
		plan = &subs[0].Plan
	} else {
		plan, err = s.repo.GetDefaultPlan()
		if err != nil {
			return nil, err
		}
	}

	usage, err := s.repo.CountUsage(userID)
	if err != nil {
		return nil, err
	}

	count := usage.Workouts
	if resource == entitlements.ResourceCustomExercises {
		count = usage.CustomExercises
	}

	check := entitlements.Evaluate(count, entitlements.LimitFor(plan, resource))
	return &check, nil
}

// AdminSetPlan grants a plan to a user through the same atomic ledger
// transition as a paid capture, recorded with the admin provider marker.
func (s *Service) AdminSetPlan(ctx context.Context, userID, planID uint) (*Snapshot, error) {
	plan, err := s.repo.GetPlan(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	if _, err := s.repo.ApplyAdminPlanChange(userID, plan, s.now()); err != nil {
		return nil, err
	}
	return s.GetEffectiveSubscription(ctx, userID)
}

// ListPlans returns the plan catalog.
func (s *Service) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	_ = ctx
	return s.repo.ListPlans()
}

func (s *Service) freeSnapshot(free *models.SubscriptionPlan, usage Usage) *Snapshot {
	return &Snapshot{
		PlanID:   free.ID,
		PlanName: free.Name,
		Status:   models.SubscriptionStatusActive,
		IsFree:   true,
		Entitlements: Entitlements{
			MaxWorkouts:        entitlements.LimitFor(free, entitlements.ResourceWorkouts),
			MaxCustomExercises: entitlements.LimitFor(free, entitlements.ResourceCustomExercises),
			AdvancedStats:      free.AdvancedStats,
			CloudBackup:        free.CloudBackup,
			AdFree:             free.AdFree,
		},
		Usage: usage,
	}
}

// daysRemaining is the ceiling of the remaining period in days.
func daysRemaining(end, now time.Time) int {
	d := int(math.Ceil(end.Sub(now).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}
