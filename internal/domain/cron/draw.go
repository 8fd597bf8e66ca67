package cron

import (
	"context"
	"time"

	"github.com/gritlabs/backend/internal/domain"
	"github.com/gritlabs/backend/pkg/dateutil"
	"github.com/gritlabs/backend/pkg/xcontext"
)

// DrawCronJob spins the Pin Wheel for the window that just closed. Racing a
// manual trigger is safe, the unique winner row decides.
type DrawCronJob struct {
	raffleDomain domain.RaffleDomain
}

func NewDrawCronJob(raffleDomain domain.RaffleDomain) *DrawCronJob {
	return &DrawCronJob{raffleDomain: raffleDomain}
}

func (job *DrawCronJob) Do(ctx context.Context) {
	// Shortly after 20:00 UTC the current window is already tomorrow's, the
	// one to draw is whatever was current just before the boundary.
	window := dateutil.DrawWindow(time.Now().Add(-time.Hour))
	if err := job.raffleDomain.RunDrawForWindow(ctx, window); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot run draw for window %s: %v", window, err)
	}
}

func (job *DrawCronJob) RunNow() bool {
	return false
}

func (job *DrawCronJob) Next() time.Time {
	return dateutil.NextWindowBoundary(time.Now()).Add(30 * time.Second)
}
