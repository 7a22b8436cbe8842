package workspace

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/polysweep/polysweep/internal/grid"
)

// ManifestFileName is the manifest's file name inside a results directory.
const ManifestFileName = "manifest.yaml"

// Manifest is the on-disk registry of one generated run: which jobs exist,
// where their workspaces are, and what the scheduler knows about them. Every
// command loads it, acts, and saves it back; there is no other job state.
type Manifest struct {
	Name      string          `yaml:"name"`
	Uid       string          `yaml:"uid"`
	CreatedAt time.Time       `yaml:"createdAt"`
	SpecPath  string          `yaml:"specPath"`
	HPC       grid.HPCProfile `yaml:"hpc"`
	Jobs      []*JobRecord    `yaml:"jobs"`

	// Dir is the directory holding the manifest file. Workspace paths are
	// stored relative to it.
	Dir string `yaml:"-"`
}

// JobRecord is one job's entry in the manifest. SchedulerId, SubmitBatch, and
// SubmittedAt stay empty until the job is submitted.
type JobRecord struct {
	Id          string                `yaml:"id"`
	Parameters  []grid.ParameterValue `yaml:"parameters"`
	ConfigFile  string                `yaml:"configFile"`
	ScriptFile  string                `yaml:"scriptFile"`
	Workspace   string                `yaml:"workspace"`
	SchedulerId string                `yaml:"schedulerId,omitempty"`
	SubmitBatch string                `yaml:"submitBatch,omitempty"`
	SubmittedAt *time.Time            `yaml:"submittedAt,omitempty"`
}

// NewManifest creates the manifest for a fresh run rooted at dir.
func NewManifest(dir string, spec *grid.SweepSpec, specPath string) *Manifest {
	return &Manifest{
		Name:      spec.Name,
		Uid:       uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		SpecPath:  specPath,
		HPC:       spec.HPC,
		Dir:       dir,
	}
}

// ManifestFromFilePath loads a manifest. filePath may point at the manifest
// file itself or at the results directory containing it.
func ManifestFromFilePath(filePath string) (*Manifest, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.IsDir() {
		filePath = filepath.Join(filePath, ManifestFileName)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal manifest %s", filePath)
		return nil, errors.WithStack(err)
	}
	manifest.Dir = filepath.Dir(filePath)
	return manifest, nil
}

// Save writes the manifest back to its directory. The write goes through a
// temporary file and a rename so a crash never leaves a half-written
// registry.
func (manifest *Manifest) Save() error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(manifest.Dir, ".manifest-*.yaml")
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.WithStack(err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(manifest.Dir, ManifestFileName)); err != nil {
		os.Remove(tmp.Name())
		return errors.WithStack(err)
	}
	return nil
}

// Job returns the record with the given id, or nil.
func (manifest *Manifest) Job(id string) *JobRecord {
	for _, job := range manifest.Jobs {
		if job.Id == id {
			return job
		}
	}
	return nil
}

// WorkspaceDir returns the absolute workspace directory of a job record.
func (manifest *Manifest) WorkspaceDir(job *JobRecord) string {
	if filepath.IsAbs(job.Workspace) {
		return job.Workspace
	}
	return filepath.Join(manifest.Dir, job.Workspace)
}
