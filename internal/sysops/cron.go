package sysops

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// DefaultUpgradableCheckSchedule runs the scheduled upgradable scan daily
// at 03:17 (SPEC_FULL.md §3's supplemented scheduled maintenance job;
// the odd minute avoids the top-of-hour cron stampede that every
// default-scheduled agent would otherwise share).
const DefaultUpgradableCheckSchedule = "17 3 * * *"

// ScheduledUpgradableCheck wires a robfig/cron job that performs the same
// scan as apt:list_upgradable and, if packages are pending, emits an
// unsolicited apt_upgradable_list frame flagged "scheduled": true
// (SPEC_FULL.md §3).
type ScheduledUpgradableCheck struct {
	cron *cron.Cron
}

// StartScheduledUpgradableCheck registers and starts the job. send is
// invoked through the same serialized transport path every other
// outbound frame uses. Stop the returned *ScheduledUpgradableCheck on
// session teardown.
func StartScheduledUpgradableCheck(schedule string, send wire.SendFunc) (*ScheduledUpgradableCheck, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		packages, err := ListUpgradable(ctx)
		if err != nil {
			logger.Warn("scheduled upgradable check failed", "err", err)
			return
		}
		if len(packages) == 0 {
			return
		}
		if err := send(ctx, wire.AptUpgradableListResult{
			AptUpgradableList: packages,
			Scheduled:         true,
		}); err != nil {
			logger.Warn("scheduled upgradable check send failed", "err", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &ScheduledUpgradableCheck{cron: c}, nil
}

// Stop halts the cron scheduler, waiting for any in-flight job.
func (s *ScheduledUpgradableCheck) Stop() {
	<-s.cron.Stop().Done()
}
