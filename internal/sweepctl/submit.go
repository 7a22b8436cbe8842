package sweepctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/renstrom/shortuuid"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

// Submit submits staged jobs from the manifest and records the returned
// scheduler ids. Jobs that already carry a scheduler id are left alone unless
// resubmitFailed is set and they have since failed. Outcomes are per job; one
// rejection never aborts the batch.
func (a *App) Submit(manifestPath string, maxJobs int, dryRun bool, resubmitFailed bool) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	pending, err := a.submittableJobs(manifest, resubmitFailed)
	if err != nil {
		return err
	}
	if maxJobs > 0 && len(pending) > maxJobs {
		pending = pending[:maxJobs]
		fmt.Fprintf(a.Out, "Limiting to the first %d jobs\n", maxJobs)
	}
	if len(pending) == 0 {
		fmt.Fprintf(a.Out, "Nothing to submit: all %d jobs of run %s have been submitted\n", len(manifest.Jobs), manifest.Name)
		return nil
	}
	if dryRun {
		for _, job := range pending {
			fmt.Fprintf(a.Out, "Would submit %s from %s\n", job.Id, manifest.WorkspaceDir(job))
		}
		fmt.Fprintf(a.Out, "Dry run: %d jobs to submit\n", len(pending))
		return nil
	}

	for _, job := range pending {
		if job.SchedulerId != "" {
			if err := a.resetForResubmission(manifest, job); err != nil {
				return err
			}
		}
	}

	batch := shortuuid.New()
	fmt.Fprintf(a.Out, "Submitting %d jobs from run %s (batch %s)\n", len(pending), manifest.Name, batch)

	submitter := scheduler.NewSubmitter(a.scheduler(), a.Params.SubmitRetries)
	results := submitter.SubmitAll(context.Background(), manifest, pending)

	now := time.Now().UTC()
	submitted, failed := 0, 0
	for _, result := range results {
		if result.Error != nil {
			failed++
			continue
		}
		result.Job.SchedulerId = result.SchedulerId
		result.Job.SubmitBatch = batch
		submittedAt := now
		result.Job.SubmittedAt = &submittedAt
		submitted++
		fmt.Fprintf(a.Out, "Submitted %s as scheduler job %s\n", result.Job.Id, result.SchedulerId)
	}
	if err := manifest.Save(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Submitted %d jobs, %d failed, %d untouched\n", submitted, failed, len(manifest.Jobs)-len(pending))
	if failed > 0 {
		return errors.Errorf("%d of %d submissions failed", failed, len(pending))
	}
	return nil
}

// submittableJobs selects jobs without a scheduler id and, when
// resubmitFailed is set, jobs whose derived status is Failed. Selection has
// no side effects so it is safe under a dry run.
func (a *App) submittableJobs(manifest *workspace.Manifest, resubmitFailed bool) ([]*workspace.JobRecord, error) {
	var pending []*workspace.JobRecord
	var tracker *scheduler.Tracker
	if resubmitFailed {
		tracker = a.tracker()
	}
	for _, job := range manifest.Jobs {
		if job.SchedulerId == "" {
			pending = append(pending, job)
			continue
		}
		if !resubmitFailed {
			continue
		}
		status, err := tracker.Status(context.Background(), manifest, job)
		if err != nil {
			log.Warnf("Not resubmitting job %s: %s", job.Id, err)
			continue
		}
		if status == scheduler.Failed {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

// resetForResubmission clears the failure marker and the stale scheduler
// fields so the tracker sees the resubmitted job as fresh. Without this the
// old FAILED marker would keep outranking the new scheduler state.
func (a *App) resetForResubmission(manifest *workspace.Manifest, job *workspace.JobRecord) error {
	marker := filepath.Join(manifest.WorkspaceDir(job), workspace.StatusFileName)
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		err = errors.WithMessagef(err, "failed to clear status marker of job %s", job.Id)
		return errors.WithStack(err)
	}
	job.SchedulerId = ""
	job.SubmitBatch = ""
	job.SubmittedAt = nil
	return nil
}
