package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ExpirySweeper deletes expired notifications.
type ExpirySweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

const sweepTimeout = 2 * time.Minute

// StartNotificationCronJobs schedules the expiry sweep and starts the
// scheduler. Stop the returned cron to end it.
func StartNotificationCronJobs(sweeper ExpirySweeper, schedule string) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(schedule, func() { runSweep(sweeper) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	c.Start()
	logrus.WithField("schedule", schedule).Info("Notification cleanup scheduled")
	return c, nil
}

func runSweep(sweeper ExpirySweeper) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := sweeper.CleanupExpired(ctx)
	if err != nil {
		logrus.WithError(err).Error("CleanupExpired failed")
		return
	}
	logrus.WithField("deleted", deleted).Debug("Expiry sweep finished")
}
