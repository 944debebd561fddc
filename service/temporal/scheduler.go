package temporal

import (
	"context"
	"time"
)

// RefreshScheduleID is the ID of the schedule that triggers RefreshEligibleUsersWorkflow.
const RefreshScheduleID = "refresh-eligible-users"

// Scheduler manages the eligible-users refresh schedule.
type Scheduler interface {
	// UpsertRefreshSchedule creates the schedule or updates its interval.
	UpsertRefreshSchedule(ctx context.Context, interval time.Duration) error

	// DeleteRefreshSchedule removes the schedule.
	DeleteRefreshSchedule(ctx context.Context) error

	// TriggerRefresh starts one refresh run immediately and returns its workflow ID.
	TriggerRefresh(ctx context.Context) (string, error)
}
