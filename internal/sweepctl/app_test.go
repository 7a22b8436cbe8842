package sweepctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

const testSweepSpec = `
name: slt_sweep
parameters:
  - name: weight
    tag: w
    values: [1e4, 1e5]
  - name: dhat
    tag: d
    values: [1e-3]
configs:
  run: run_base.json
  state: state_base.json
bindings:
  - path: functionals[type=smooth_layer_thickness].weight
    parameter: weight
  - path: contact.dhat
    parameter: dhat
hpc:
  walltime: "06:00:00"
  nodes: 1
  cpus: 16
  memory: 64G
assets:
  - pattern: "*.msh"
    required: true
  - pattern: surface_selections.txt
    required: true
`

const testRunConfig = `{
  "contact": {"dhat": 0.05},
  "functionals": [
    {"type": "smooth_layer_thickness", "weight": 1.0},
    {"type": "target_match", "weight": 100.0}
  ],
  "state_path": "state_base.json"
}`

const testStateConfig = `{"materials": [{"E": 1.0E8, "id": 1, "nu": 0.48}]}`

// writeSweepFixture lays out a sweep directory: spec, base configs, assets.
func writeSweepFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"sweep.yaml":             testSweepSpec,
		"run_base.json":          testRunConfig,
		"state_base.json":        testStateConfig,
		"cervix.msh":             "mesh data",
		"surface_selections.txt": "1 2 3",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return filepath.Join(dir, "sweep.yaml")
}

// fakeScheduler queues every submitted job and remembers what was asked of
// it.
type fakeScheduler struct {
	nextHandle int
	states     map[string]scheduler.JobState
	submits    []string
	cancels    []string
	lock       sync.Mutex
}

func newAppFakeScheduler() *fakeScheduler {
	return &fakeScheduler{states: map[string]scheduler.JobState{}}
}

func (f *fakeScheduler) Submit(ctx context.Context, workDir, script string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.nextHandle++
	handle := strconv.Itoa(9000 + f.nextHandle)
	f.states[handle] = scheduler.StateQueued
	f.submits = append(f.submits, filepath.Base(workDir))
	return handle, nil
}

func (f *fakeScheduler) Status(ctx context.Context, handle string) (scheduler.JobState, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	state, ok := f.states[handle]
	if !ok {
		return scheduler.StateUnknown, nil
	}
	return state, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, handle string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.cancels = append(f.cancels, handle)
	f.states[handle] = scheduler.StateFinished
	return nil
}

func newTestApp(resultsDir string, sched scheduler.Scheduler) (*App, *bytes.Buffer) {
	out := new(bytes.Buffer)
	app := New()
	app.Out = out
	app.Params.ResultsDir = resultsDir
	app.Params.PolyfemBuildDir = "/opt/polyfem/build"
	app.Params.Scheduler = sched
	return app, out
}

func TestGenerateSubmitStatusRoundTrip(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	fake := newAppFakeScheduler()
	app, out := newTestApp(resultsDir, fake)

	// Generate stages one workspace per job plus the manifest.
	require.NoError(t, app.Generate(specPath, false, 0, false))
	assert.Contains(t, out.String(), "expands to 2 jobs")

	for _, jobId := range []string{"w1e04_d1en03", "w1e05_d1en03"} {
		workDir := filepath.Join(resultsDir, jobId)
		for _, name := range []string{"run_" + jobId + ".json", "state_base.json", "slurm_job.sh", "cervix.msh", "surface_selections.txt"} {
			assert.FileExists(t, filepath.Join(workDir, name))
		}
		info, err := os.Stat(filepath.Join(workDir, "slurm_job.sh"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
	}
	rendered, err := os.ReadFile(filepath.Join(resultsDir, "w1e05_d1en03", "run_w1e05_d1en03.json"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `"weight": 100000`)
	assert.Contains(t, string(rendered), `"dhat": 0.001`)
	// Unbound literals stay untouched.
	assert.Contains(t, string(rendered), `"weight": 100.0`)

	// Submit records scheduler ids and the batch into the manifest.
	out.Reset()
	require.NoError(t, app.Submit(resultsDir, 0, false, false))
	assert.Contains(t, out.String(), "Submitted 2 jobs, 0 failed")
	assert.Equal(t, []string{"w1e04_d1en03", "w1e05_d1en03"}, fake.submits)

	manifest, err := workspace.ManifestFromFilePath(resultsDir)
	require.NoError(t, err)
	require.Len(t, manifest.Jobs, 2)
	batch := manifest.Jobs[0].SubmitBatch
	assert.NotEmpty(t, batch)
	for _, job := range manifest.Jobs {
		assert.NotEmpty(t, job.SchedulerId)
		assert.Equal(t, batch, job.SubmitBatch)
		require.NotNil(t, job.SubmittedAt)
		assert.WithinDuration(t, time.Now(), *job.SubmittedAt, time.Minute)
	}

	// Submitting again finds nothing to do.
	out.Reset()
	require.NoError(t, app.Submit(resultsDir, 0, false, false))
	assert.Contains(t, out.String(), "Nothing to submit")

	// Both jobs are queued from the orchestrator's point of view.
	out.Reset()
	require.NoError(t, app.Status(resultsDir))
	assert.Contains(t, out.String(), "Submitted:   2")

	// First job finishes successfully and writes its marker.
	first := manifest.Job("w1e04_d1en03")
	fake.states[first.SchedulerId] = scheduler.StateFinished
	marker := filepath.Join(resultsDir, first.Id, workspace.StatusFileName)
	require.NoError(t, os.WriteFile(marker, []byte("SUCCESS\n"), 0644))

	out.Reset()
	require.NoError(t, app.Status(resultsDir))
	assert.Contains(t, out.String(), "Succeeded:   1")
	assert.Contains(t, out.String(), "Submitted:   1")

	// Cancelling all active jobs touches only the one still queued.
	out.Reset()
	require.NoError(t, app.Cancel(resultsDir, nil, true))
	second := manifest.Job("w1e05_d1en03")
	assert.Equal(t, []string{second.SchedulerId}, fake.cancels)
}

func TestGenerateDryRun(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	app, out := newTestApp(resultsDir, newAppFakeScheduler())

	require.NoError(t, app.Generate(specPath, false, 0, true))
	assert.Contains(t, out.String(), "Dry run: would stage 2 workspaces")
	assert.NoDirExists(t, resultsDir)
}

func TestGenerateMaxJobs(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	app, _ := newTestApp(resultsDir, newAppFakeScheduler())

	require.NoError(t, app.Generate(specPath, false, 1, false))

	manifest, err := workspace.ManifestFromFilePath(resultsDir)
	require.NoError(t, err)
	require.Len(t, manifest.Jobs, 1)
	assert.Equal(t, "w1e04_d1en03", manifest.Jobs[0].Id)
	assert.NoDirExists(t, filepath.Join(resultsDir, "w1e05_d1en03"))
}

func TestGenerateRefusesExistingWorkspaces(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	app, _ := newTestApp(resultsDir, newAppFakeScheduler())

	require.NoError(t, app.Generate(specPath, false, 0, false))
	assert.Error(t, app.Generate(specPath, false, 0, false))
}

func TestGenerateSkipExistingKeepsSubmission(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	fake := newAppFakeScheduler()
	app, out := newTestApp(resultsDir, fake)

	require.NoError(t, app.Generate(specPath, false, 0, false))
	require.NoError(t, app.Submit(resultsDir, 0, false, false))

	// Regenerating with --skip-existing must not lose the scheduler ids of
	// the jobs it skips.
	out.Reset()
	require.NoError(t, app.Generate(specPath, true, 0, false))
	assert.Contains(t, out.String(), "Staged 0 workspaces")

	manifest, err := workspace.ManifestFromFilePath(resultsDir)
	require.NoError(t, err)
	require.Len(t, manifest.Jobs, 2)
	for _, job := range manifest.Jobs {
		assert.NotEmpty(t, job.SchedulerId)
	}
}

func TestSubmitResubmitFailed(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	fake := newAppFakeScheduler()
	app, out := newTestApp(resultsDir, fake)

	require.NoError(t, app.Generate(specPath, false, 0, false))
	require.NoError(t, app.Submit(resultsDir, 0, false, false))

	manifest, err := workspace.ManifestFromFilePath(resultsDir)
	require.NoError(t, err)
	failed := manifest.Job("w1e04_d1en03")
	oldHandle := failed.SchedulerId
	fake.states[oldHandle] = scheduler.StateFinished
	marker := filepath.Join(resultsDir, failed.Id, workspace.StatusFileName)
	require.NoError(t, os.WriteFile(marker, []byte("FAILED\n"), 0644))

	// Without the flag nothing is resubmitted.
	out.Reset()
	require.NoError(t, app.Submit(resultsDir, 0, false, false))
	assert.Contains(t, out.String(), "Nothing to submit")

	require.NoError(t, app.Submit(resultsDir, 0, false, true))

	manifest, err = workspace.ManifestFromFilePath(resultsDir)
	require.NoError(t, err)
	resubmitted := manifest.Job("w1e04_d1en03")
	assert.NotEmpty(t, resubmitted.SchedulerId)
	assert.NotEqual(t, oldHandle, resubmitted.SchedulerId)
	// The stale failure marker is gone, so the job reads as queued again.
	assert.NoFileExists(t, marker)
	assert.Equal(t, []string{"w1e04_d1en03", "w1e05_d1en03", "w1e04_d1en03"}, fake.submits)
}

func TestSubmitDryRun(t *testing.T) {
	specPath := writeSweepFixture(t)
	resultsDir := filepath.Join(t.TempDir(), "results")
	fake := newAppFakeScheduler()
	app, out := newTestApp(resultsDir, fake)

	require.NoError(t, app.Generate(specPath, false, 0, false))
	out.Reset()
	require.NoError(t, app.Submit(resultsDir, 0, true, false))
	assert.Contains(t, out.String(), "Dry run: 2 jobs to submit")
	assert.Empty(t, fake.submits)
}

func TestVersion(t *testing.T) {
	app, out := newTestApp(t.TempDir(), nil)
	require.NoError(t, app.Version())
	assert.Contains(t, out.String(), "Version:")
	assert.Contains(t, out.String(), "Commit:")
}
