package workspace

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysweep/polysweep/internal/grid"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	spec := &grid.SweepSpec{
		Name: "slt",
		HPC:  grid.HPCProfile{Walltime: "06:00:00", Nodes: 1, Cpus: 16, Memory: "64G"},
	}
	manifest := NewManifest(dir, spec, "sweeps/slt.yaml")
	assert.NotEmpty(t, manifest.Uid)

	now := time.Now().UTC()
	manifest.Jobs = []*JobRecord{
		{
			Id: "w1e05_d1en03",
			Parameters: []grid.ParameterValue{
				{Name: "weight", Tag: "w", Value: 1e5},
				{Name: "dhat", Tag: "d", Value: 1e-3},
			},
			ConfigFile: "run_w1e05_d1en03.json",
			ScriptFile: "slurm_job.sh",
			Workspace:  "w1e05_d1en03",
		},
		{
			Id:          "w1e05_d1en04",
			ConfigFile:  "run_w1e05_d1en04.json",
			ScriptFile:  "slurm_job.sh",
			Workspace:   "w1e05_d1en04",
			SchedulerId: "2723147",
			SubmitBatch: "f8QmXnWp",
			SubmittedAt: &now,
		},
	}
	require.NoError(t, manifest.Save())

	// Loading via the directory finds manifest.yaml inside it.
	loaded, err := ManifestFromFilePath(dir)
	require.NoError(t, err)
	assert.Equal(t, manifest.Name, loaded.Name)
	assert.Equal(t, manifest.Uid, loaded.Uid)
	assert.Equal(t, "sweeps/slt.yaml", loaded.SpecPath)
	assert.Equal(t, 16, loaded.HPC.Cpus)
	assert.WithinDuration(t, manifest.CreatedAt, loaded.CreatedAt, time.Second)
	require.Len(t, loaded.Jobs, 2)

	job := loaded.Job("w1e05_d1en03")
	require.NotNil(t, job)
	assert.Equal(t, "run_w1e05_d1en03.json", job.ConfigFile)
	assert.Equal(t, filepath.Join(dir, "w1e05_d1en03"), loaded.WorkspaceDir(job))
	require.Len(t, job.Parameters, 2)
	assert.Equal(t, "weight", job.Parameters[0].Name)
	assert.EqualValues(t, 1e5, job.Parameters[0].Value)
	assert.Empty(t, job.SchedulerId)

	submitted := loaded.Job("w1e05_d1en04")
	require.NotNil(t, submitted)
	assert.Equal(t, "2723147", submitted.SchedulerId)
	assert.Equal(t, "f8QmXnWp", submitted.SubmitBatch)
	require.NotNil(t, submitted.SubmittedAt)
	assert.WithinDuration(t, now, *submitted.SubmittedAt, time.Second)

	assert.Nil(t, loaded.Job("absent"))
}

func TestManifestSaveIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	manifest := NewManifest(dir, &grid.SweepSpec{Name: "s"}, "s.yaml")
	manifest.Jobs = []*JobRecord{{Id: "a", Workspace: "a"}}
	require.NoError(t, manifest.Save())

	manifest.Jobs[0].SchedulerId = "42"
	require.NoError(t, manifest.Save())

	loaded, err := ManifestFromFilePath(filepath.Join(dir, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Jobs[0].SchedulerId)
}

func TestManifestFromFilePathMissing(t *testing.T) {
	_, err := ManifestFromFilePath(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
