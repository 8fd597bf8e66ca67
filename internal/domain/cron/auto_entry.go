package cron

import (
	"context"
	"time"

	"github.com/gritlabs/backend/internal/domain"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/pkg/dateutil"
	"github.com/gritlabs/backend/pkg/xcontext"
)

// AutoEntryCronJob enters opted-in users into the fresh window shortly after
// it opens. Re-running is harmless: everyone already entered is skipped.
type AutoEntryCronJob struct {
	raffleDomain domain.RaffleDomain
}

func NewAutoEntryCronJob(raffleDomain domain.RaffleDomain) *AutoEntryCronJob {
	return &AutoEntryCronJob{raffleDomain: raffleDomain}
}

func (job *AutoEntryCronJob) Do(ctx context.Context) {
	report := job.raffleDomain.RunAutoEntryBatch(ctx)
	xcontext.Logger(ctx).Infof(
		"Auto entry for window %s: processed=%d succeeded=%d failed=%d skipped=%d",
		report.WindowDate, report.Processed, report.Succeeded, report.Failed, report.Skipped)

	for _, result := range report.Results {
		if result.Outcome == model.AutoEntrySucceeded {
			continue
		}

		xcontext.Logger(ctx).Debugf("Auto entry %s for user %s: %s",
			result.Outcome, result.UserID, result.Reason)
	}
}

func (job *AutoEntryCronJob) RunNow() bool {
	return true
}

func (job *AutoEntryCronJob) Next() time.Time {
	// A minute after the boundary, once the new window is open for sure.
	return dateutil.NextWindowBoundary(time.Now()).Add(time.Minute)
}
