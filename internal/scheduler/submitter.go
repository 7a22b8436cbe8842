package scheduler

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/sweeperrors"
	"github.com/polysweep/polysweep/internal/workspace"
)

// SubmitResult is one job's outcome within a batch submission.
type SubmitResult struct {
	Job         *workspace.JobRecord
	SchedulerId string
	Error       error
}

// Submitter submits job scripts sequentially. The scheduler queue is the one
// shared external resource of the pipeline, so there is no submission
// concurrency, only bounded retries.
type Submitter struct {
	scheduler Scheduler
	// Number of retries after a scheduler-confirmed rejection.
	retries uint
	// Delay between attempts.
	retryDelay time.Duration
}

func NewSubmitter(scheduler Scheduler, retries uint) *Submitter {
	return &Submitter{
		scheduler:  scheduler,
		retries:    retries,
		retryDelay: 2 * time.Second,
	}
}

// SubmitAll submits every job in jobs and returns one result per job, in
// order. A failed submission never aborts the batch. Retries happen only for
// failures the scheduler itself confirmed: an unconfirmed failure (say, a
// timeout) may mean the submission reached the scheduler anyway, and blindly
// retrying it could submit the job twice.
func (submitter *Submitter) SubmitAll(ctx context.Context, manifest *workspace.Manifest, jobs []*workspace.JobRecord) []SubmitResult {
	results := make([]SubmitResult, len(jobs))
	for i, job := range jobs {
		handle, err := submitter.submit(ctx, manifest, job)
		if err != nil {
			log.Warnf("submission of job %s failed: %s", job.Id, err)
		}
		results[i] = SubmitResult{Job: job, SchedulerId: handle, Error: err}
	}
	return results
}

func (submitter *Submitter) submit(ctx context.Context, manifest *workspace.Manifest, job *workspace.JobRecord) (string, error) {
	workDir := manifest.WorkspaceDir(job)
	var handle string
	err := retry.Do(
		func() error {
			h, err := submitter.scheduler.Submit(ctx, workDir, job.ScriptFile)
			if err != nil {
				return err
			}
			handle = h
			return nil
		},
		retry.Attempts(submitter.retries+1),
		retry.Delay(submitter.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(sweeperrors.IsConfirmedSubmissionFailure),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", errors.WithMessagef(err, "failed to submit job %s", job.Id)
	}
	return handle, nil
}
