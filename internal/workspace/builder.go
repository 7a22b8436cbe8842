package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// StatusFileName is the marker file a job writes into its workspace on
// completion. Its content is the authoritative terminal state.
const StatusFileName = "status.txt"

// Job collects everything staged into one workspace.
type Job struct {
	Id string
	// Documents are the rendered configuration files by target file name.
	Documents map[string][]byte
	// AssetPaths are source paths of static files copied in under their base
	// names.
	AssetPaths []string
	// ScriptName and Script are the scheduler script, staged with mode 0755.
	ScriptName string
	Script     []byte
}

// Builder stages job workspaces under a results directory. Each workspace is
// staged into a hidden temporary directory and renamed into place, so on disk
// a workspace either exists completely or not at all.
type Builder struct {
	resultsDir string
}

func NewBuilder(resultsDir string) *Builder {
	return &Builder{resultsDir: resultsDir}
}

// Dir returns the workspace directory a job is staged into.
func (builder *Builder) Dir(jobId string) string {
	return filepath.Join(builder.resultsDir, jobId)
}

// Build stages one job workspace and commits it. A pre-existing non-empty
// directory under the job's name is an ErrWorkspaceConflict, never merged or
// overwritten; a pre-existing empty directory is reclaimed.
func (builder *Builder) Build(job *Job) (string, error) {
	target := builder.Dir(job.Id)
	entries, err := os.ReadDir(target)
	if err == nil {
		if len(entries) > 0 {
			return "", errors.WithStack(&sweeperrors.ErrWorkspaceConflict{JobId: job.Id, Dir: target})
		}
		if err := os.Remove(target); err != nil {
			return "", errors.WithStack(err)
		}
	} else if !os.IsNotExist(err) {
		return "", errors.WithStack(err)
	}

	if err := os.MkdirAll(builder.resultsDir, 0755); err != nil {
		return "", errors.WithStack(err)
	}
	stagingDir, err := os.MkdirTemp(builder.resultsDir, fmt.Sprintf(".%s.staging-", job.Id))
	if err != nil {
		return "", errors.WithStack(err)
	}
	// A no-op once the staging dir has been renamed into place.
	defer os.RemoveAll(stagingDir)

	for name, data := range job.Documents {
		if err := os.WriteFile(filepath.Join(stagingDir, name), data, 0644); err != nil {
			return "", errors.WithStack(err)
		}
	}
	for _, assetPath := range job.AssetPaths {
		dst := filepath.Join(stagingDir, filepath.Base(assetPath))
		if err := copyFile(assetPath, dst); err != nil {
			return "", errors.WithMessagef(err, "failed to stage asset %s for job %s", assetPath, job.Id)
		}
	}
	if job.ScriptName != "" {
		if err := os.WriteFile(filepath.Join(stagingDir, job.ScriptName), job.Script, 0755); err != nil {
			return "", errors.WithStack(err)
		}
	}

	if err := os.Rename(stagingDir, target); err != nil {
		if _, statErr := os.Stat(target); statErr == nil {
			return "", errors.WithStack(&sweeperrors.ErrWorkspaceConflict{JobId: job.Id, Dir: target})
		}
		return "", errors.WithStack(err)
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(out.Close())
}
