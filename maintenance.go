package gatewaycore

import (
	"context"
)

// cleanupLifecycles purges lifecycle records not seen within the retention
// window and stops tracking the health of their models.
func (c *Core) cleanupLifecycles(ctx context.Context) error {
	purged := c.detector.PurgeLifecycles(c.retention)
	for _, lc := range purged {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.monitor.UntrackModel(lc.Provider, lc.ModelID)
	}
	if len(purged) > 0 {
		c.logger.Info("model lifecycles purged", "count", len(purged), "retention", c.retention.String())
	}
	return nil
}

// MaintenanceJobs returns the names of the registered maintenance jobs.
func (c *Core) MaintenanceJobs() []string { return c.jobs.Jobs() }

// RunMaintenance runs the named maintenance job now.
func (c *Core) RunMaintenance(ctx context.Context, job string) error {
	return c.jobs.RunNow(ctx, job)
}
