package cron_test

import (
	"context"
	"testing"

	"github.com/flemzord/rolechat/internal/cron"
	"github.com/flemzord/rolechat/internal/cron/crontest"
)

// FuzzSchedulerStart feeds arbitrary schedule overrides, as read from the
// config file, through Start. It must never panic.
func FuzzSchedulerStart(f *testing.F) {
	for _, seed := range []string{"*/5 * * * *", "0 0 1 1 *", "invalid", "", "60 * * * *", "@every 90s", "@hourly"} {
		f.Add(seed)
	}

	f.Fuzz(func(_ *testing.T, expr string) {
		s := cron.NewScheduler(discardLogger())
		_ = s.RegisterJob(&cron.ModelRefreshJob{Refresher: &crontest.MockRefresher{}, ScheduleExpr: expr})
		if err := s.Start(context.Background()); err == nil {
			_ = s.Stop(context.Background())
		}
	})
}
