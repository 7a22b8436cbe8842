package sweepctl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

// Cancel relays cancellation to the scheduler for the named jobs, or for
// every job still active when all is set. Workspaces are left in place;
// cancellation only stops cluster work.
func (a *App) Cancel(manifestPath string, jobIds []string, all bool) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	var targets []*workspace.JobRecord
	if all {
		tracker := a.tracker()
		for _, job := range manifest.Jobs {
			status, err := tracker.Status(context.Background(), manifest, job)
			if err != nil {
				log.Warnf("%s", err)
			}
			if status == scheduler.Submitted || status == scheduler.Running {
				targets = append(targets, job)
			}
		}
	} else {
		for _, id := range jobIds {
			job := manifest.Job(id)
			if job == nil {
				return errors.Errorf("job %s is not part of run %s", id, manifest.Name)
			}
			targets = append(targets, job)
		}
	}
	if len(targets) == 0 {
		fmt.Fprintf(a.Out, "No jobs to cancel\n")
		return nil
	}

	sched := a.scheduler()
	cancelled, failed := 0, 0
	for _, job := range targets {
		if job.SchedulerId == "" {
			fmt.Fprintf(a.Out, "Skipping %s: never submitted\n", job.Id)
			continue
		}
		if err := sched.Cancel(context.Background(), job.SchedulerId); err != nil {
			failed++
			log.Warnf("Failed to cancel job %s: %s", job.Id, err)
			continue
		}
		cancelled++
		fmt.Fprintf(a.Out, "Requested cancellation of %s (scheduler job %s)\n", job.Id, job.SchedulerId)
	}
	fmt.Fprintf(a.Out, "Requested cancellation for %d jobs, %d failed\n", cancelled, failed)
	if failed > 0 {
		return errors.Errorf("%d of %d cancellations failed", failed, len(targets))
	}
	return nil
}
