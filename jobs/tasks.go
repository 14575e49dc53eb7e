package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeExpireAssignments deactivates role assignments whose
	// expiry has passed.
	TaskTypeExpireAssignments = "rbac:expire_assignments"
)

// NewExpireAssignmentsTask constructs the expiry sweep task. The sweep
// needs no payload; the database rows carry everything.
func NewExpireAssignmentsTask() *asynq.Task {
	return asynq.NewTask(TaskTypeExpireAssignments, nil)
}

// SweeperPort deactivates expired assignments and invalidates the
// affected users' cache entries.
type SweeperPort interface {
	SweepExpired(ctx context.Context) (int, error)
}

// NewExpireAssignmentsHandler returns the asynq handler for the sweep.
func NewExpireAssignmentsHandler(sweeper SweeperPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		swept, err := sweeper.SweepExpired(ctx)
		if err != nil {
			logger.Error("expire assignments sweep", slog.Any("error", err))
			return err
		}
		if swept > 0 {
			logger.Info("expire assignments sweep", slog.Int("users", swept))
		}
		return nil
	}
}
