package subscription

import "time"

// Entitlements is the plan limit set exposed on a snapshot.
type Entitlements struct {
	MaxWorkouts        *int `json:"max_workouts"`         // nil = unlimited
	MaxCustomExercises *int `json:"max_custom_exercises"` // nil = unlimited
	AdvancedStats      bool `json:"advanced_stats"`
	CloudBackup        bool `json:"cloud_backup"`
	AdFree             bool `json:"ad_free"`
}

// Usage carries the live resource counts joined from collaborator tables.
type Usage struct {
	Workouts        int `json:"workouts"`
	CustomExercises int `json:"custom_exercises"`
}

// Snapshot is the effective subscription view returned to callers. When the
// user has no current paid period it describes the virtual free plan:
// status "active", no expiry, default limits.
type Snapshot struct {
	PlanID        uint         `json:"plan_id"`
	PlanName      string       `json:"plan_name"`
	Status        string       `json:"status"`
	IsFree        bool         `json:"is_free"`
	StartDate     *time.Time   `json:"start_date,omitempty"`
	EndDate       *time.Time   `json:"end_date,omitempty"`
	DaysRemaining *int         `json:"days_remaining"` // nil for the free plan
	AutoRenew     bool         `json:"auto_renew"`
	Entitlements  Entitlements `json:"entitlements"`
	Usage         Usage        `json:"usage"`
}
