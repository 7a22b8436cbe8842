package sweepctl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/workspace"
)

// Per-iteration solver outputs are named opt_<run>_<iteration>_<points>.vtu,
// with a _surf variant for surface meshes and .vtm for multiblock sets.
var solverOutputPattern = regexp.MustCompile(`^opt_(\d+)_(\d+)_(\d+)(?:_surf)?\.(?:vtu|vtm)$`)

// Cleanup deletes per-iteration solver output files from every job workspace,
// keeping the iteration given by keepIteration. A long optimization writes
// meshes at every iteration and only the final ones are usually worth the
// disk. Files that do not match the solver's output naming are never touched.
func (a *App) Cleanup(manifestPath string, keepIteration int, dryRun bool) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Cleaning solver outputs in %d workspaces, keeping iteration %d\n", len(manifest.Jobs), keepIteration)

	deleted, kept := 0, 0
	for _, job := range manifest.Jobs {
		files, err := solverOutputFiles(manifest.WorkspaceDir(job))
		if err != nil {
			log.Warnf("Skipping workspace of job %s: %s", job.Id, err)
			continue
		}
		for _, path := range files {
			iteration, ok := outputIteration(filepath.Base(path))
			if !ok {
				continue
			}
			if iteration == keepIteration {
				kept++
				continue
			}
			if dryRun {
				fmt.Fprintf(a.Out, "Would delete %s (iteration %d)\n", path, iteration)
				deleted++
				continue
			}
			if err := os.Remove(path); err != nil {
				log.Warnf("Failed to delete %s: %s", path, err)
				continue
			}
			deleted++
		}
	}

	action := "Deleted"
	if dryRun {
		action = "Would delete"
	}
	fmt.Fprintf(a.Out, "%s %d files, kept %d\n", action, deleted, kept)
	return nil
}

func solverOutputFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.vtu", "*.vtm"} {
		matches, err := zglob.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// outputIteration extracts the iteration number, the second numeric part of
// the file name.
func outputIteration(name string) (int, bool) {
	groups := solverOutputPattern.FindStringSubmatch(name)
	if groups == nil {
		return 0, false
	}
	iteration, err := strconv.Atoi(groups[2])
	if err != nil {
		return 0, false
	}
	return iteration, true
}
