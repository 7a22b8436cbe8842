package scheduler

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysweep/polysweep/internal/sweeperrors"
	"github.com/polysweep/polysweep/internal/workspace"
)

type fakeScheduler struct {
	mu          sync.Mutex
	nextHandle  int
	submitCalls map[string]int
	// failures are popped per submit attempt, keyed by workspace base name.
	failures    map[string][]error
	states      map[string]JobState
	statusCalls int
	statusErr   error
	cancelled   []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		submitCalls: map[string]int{},
		failures:    map[string][]error{},
		states:      map[string]JobState{},
	}
}

func (f *fakeScheduler) Submit(ctx context.Context, workDir, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := filepath.Base(workDir)
	f.submitCalls[key]++
	if errs := f.failures[key]; len(errs) > 0 {
		err := errs[0]
		f.failures[key] = errs[1:]
		return "", err
	}
	f.nextHandle++
	return strconv.Itoa(1000 + f.nextHandle), nil
}

func (f *fakeScheduler) Status(ctx context.Context, handle string) (JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return StateUnknown, f.statusErr
	}
	state, ok := f.states[handle]
	if !ok {
		return StateUnknown, nil
	}
	return state, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, handle)
	return nil
}

func confirmedRejection(output string) error {
	return errors.WithStack(&sweeperrors.ErrSubmission{
		Output:    output,
		Confirmed: true,
		Message:   "sbatch exited with status 1",
	})
}

func unconfirmedFailure(message string) error {
	return errors.WithStack(&sweeperrors.ErrSubmission{
		Confirmed: false,
		Message:   message,
	})
}

func submitManifest(t *testing.T, ids ...string) *workspace.Manifest {
	t.Helper()
	manifest := &workspace.Manifest{Name: "test", Dir: t.TempDir()}
	for _, id := range ids {
		manifest.Jobs = append(manifest.Jobs, &workspace.JobRecord{
			Id:         id,
			Workspace:  id,
			ConfigFile: "run_" + id + ".json",
			ScriptFile: "slurm_job.sh",
		})
	}
	return manifest
}

func TestSubmitAllPartialFailure(t *testing.T) {
	fake := newFakeScheduler()
	fake.failures["job-b"] = []error{
		confirmedRejection("quota exceeded"),
		confirmedRejection("quota exceeded"),
		confirmedRejection("quota exceeded"),
	}
	submitter := NewSubmitter(fake, 2)
	submitter.retryDelay = time.Millisecond
	manifest := submitManifest(t, "job-a", "job-b", "job-c")

	results := submitter.SubmitAll(context.Background(), manifest, manifest.Jobs)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Error)
	assert.NotEmpty(t, results[0].SchedulerId)

	require.Error(t, results[1].Error)
	var subErr *sweeperrors.ErrSubmission
	require.ErrorAs(t, results[1].Error, &subErr)
	assert.Empty(t, results[1].SchedulerId)

	// The batch carried on past the failure.
	assert.NoError(t, results[2].Error)
	assert.NotEmpty(t, results[2].SchedulerId)

	// retries+1 attempts for the rejected job.
	assert.Equal(t, 3, fake.submitCalls["job-b"])
}

func TestSubmitRetriesConfirmedRejections(t *testing.T) {
	fake := newFakeScheduler()
	fake.failures["job-a"] = []error{
		confirmedRejection("scheduler busy"),
		confirmedRejection("scheduler busy"),
	}
	submitter := NewSubmitter(fake, 2)
	submitter.retryDelay = time.Millisecond
	manifest := submitManifest(t, "job-a")

	results := submitter.SubmitAll(context.Background(), manifest, manifest.Jobs)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Error)
	assert.NotEmpty(t, results[0].SchedulerId)
	assert.Equal(t, 3, fake.submitCalls["job-a"])
}

func TestSubmitNeverRetriesUnconfirmedFailures(t *testing.T) {
	fake := newFakeScheduler()
	fake.failures["job-a"] = []error{
		unconfirmedFailure("timed out waiting for sbatch"),
	}
	submitter := NewSubmitter(fake, 5)
	submitter.retryDelay = time.Millisecond
	manifest := submitManifest(t, "job-a")

	results := submitter.SubmitAll(context.Background(), manifest, manifest.Jobs)
	require.Len(t, results, 1)
	require.Error(t, results[0].Error)
	// One attempt only: the submission may have reached the scheduler, and
	// retrying could double-submit.
	assert.Equal(t, 1, fake.submitCalls["job-a"])
}
