package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultCleanupSchedule = "@every 10m"

// ResetTokenStore clears password resets that expired.
type ResetTokenStore interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Pruner drops stale in-memory state, such as rate limit windows.
type Pruner interface {
	Prune() int
}

// ResetTokenCleanupJob periodically withdraws expired password reset
// tokens and prunes stale rate limit windows.
type ResetTokenCleanupJob struct {
	users  ResetTokenStore
	pruner Pruner
	cron   *cron.Cron
	log    *logrus.Logger
	now    func() time.Time
}

// NewResetTokenCleanupJob builds the job. pruner may be nil.
func NewResetTokenCleanupJob(users ResetTokenStore, pruner Pruner, log *logrus.Logger) *ResetTokenCleanupJob {
	return &ResetTokenCleanupJob{
		users:  users,
		pruner: pruner,
		cron:   cron.New(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start runs one cleanup right away and then on schedule.
func (j *ResetTokenCleanupJob) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return err
	}
	j.log.WithField("schedule", schedule).Info("reset token cleanup job started")

	go j.Run()
	j.cron.Start()
	return nil
}

// Stop waits for a running cleanup to finish or ctx to expire.
func (j *ResetTokenCleanupJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
		j.log.Info("reset token cleanup job stopped")
	case <-ctx.Done():
		j.log.Warn("reset token cleanup job did not stop in time")
	}
}

func (j *ResetTokenCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cleared, err := j.users.ClearExpiredResetTokens(ctx, j.now())
	if err != nil {
		j.log.WithError(err).Error("reset token cleanup failed")
		return
	}

	fields := logrus.Fields{"reset_tokens": cleared}
	if j.pruner != nil {
		fields["rate_limit_windows"] = j.pruner.Prune()
	}
	j.log.WithFields(fields).Debug("cleanup completed")
}
