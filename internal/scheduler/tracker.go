package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/sweeperrors"
	"github.com/polysweep/polysweep/internal/workspace"
)

// StatusResult couples one job with its derived status. Error carries the
// status anomaly, if any; an anomalous job still has a status (Unknown).
type StatusResult struct {
	Job    *workspace.JobRecord
	Status JobStatus
	Error  error
}

// Tracker derives job statuses. The workspace status marker comes first and
// is authoritative for terminal states; the scheduler is only consulted for
// jobs without a marker. A terminal scheduler state without a marker is an
// anomaly, surfaced as Unknown with an ErrStatusAnomaly and never mapped to
// Succeeded or Failed.
type Tracker struct {
	scheduler Scheduler
	// Scheduler answers are cached so repeated polls within the TTL do not
	// hammer the queue. Reads stay idempotent; the cache only bounds their
	// staleness.
	cache *cache.Cache
}

func NewTracker(scheduler Scheduler, cacheTTL time.Duration) *Tracker {
	if cacheTTL <= 0 {
		cacheTTL = time.Second
	}
	return &Tracker{
		scheduler: scheduler,
		cache:     cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Status derives one job's status. Read-only and safe to call repeatedly.
func (tracker *Tracker) Status(ctx context.Context, manifest *workspace.Manifest, job *workspace.JobRecord) (JobStatus, error) {
	markerPath := filepath.Join(manifest.WorkspaceDir(job), workspace.StatusFileName)
	data, err := os.ReadFile(markerPath)
	if err == nil {
		switch marker := strings.TrimSpace(string(data)); marker {
		case MarkerSucceeded:
			return Succeeded, nil
		case MarkerFailed:
			return Failed, nil
		default:
			return Unknown, errors.WithStack(&sweeperrors.ErrStatusAnomaly{
				JobId:   job.Id,
				Message: fmt.Sprintf("status marker contains %q, want %s or %s", marker, MarkerSucceeded, MarkerFailed),
			})
		}
	}
	if !os.IsNotExist(err) {
		return Unknown, errors.WithStack(err)
	}

	// No marker. An unsubmitted job is simply pending.
	if job.SchedulerId == "" {
		return Pending, nil
	}

	state, err := tracker.schedulerState(ctx, job.SchedulerId)
	if err != nil {
		return Unknown, errors.WithMessagef(err, "failed to query scheduler for job %s", job.Id)
	}
	switch state {
	case StateQueued:
		return Submitted, nil
	case StateRunning:
		return Running, nil
	}

	message := "scheduler no longer knows the job and the workspace has no status marker"
	if state == StateFinished {
		message = "scheduler reports the job finished but the workspace has no status marker"
	}
	return Unknown, errors.WithStack(&sweeperrors.ErrStatusAnomaly{
		JobId:   job.Id,
		Message: message,
	})
}

// StatusAll derives statuses for every job in the manifest. Anomalies are
// carried per job in the results; deriving a batch never aborts half way.
func (tracker *Tracker) StatusAll(ctx context.Context, manifest *workspace.Manifest) []StatusResult {
	results := make([]StatusResult, len(manifest.Jobs))
	for i, job := range manifest.Jobs {
		status, err := tracker.Status(ctx, manifest, job)
		results[i] = StatusResult{Job: job, Status: status, Error: err}
	}
	return results
}

func (tracker *Tracker) schedulerState(ctx context.Context, handle string) (JobState, error) {
	if cached, ok := tracker.cache.Get(handle); ok {
		return cached.(JobState), nil
	}
	state, err := tracker.scheduler.Status(ctx, handle)
	if err != nil {
		return StateUnknown, err
	}
	tracker.cache.Set(handle, state, cache.DefaultExpiration)
	return state, nil
}
