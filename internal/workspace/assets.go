// Package workspace stages per-job directories and maintains the run
// manifest, the on-disk registry tying job identifiers to workspaces and
// scheduler state.
package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/grid"
	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// ResolveAssets expands the spec's asset patterns relative to its base
// directory and returns the matched file paths, sorted and deduplicated.
// Required patterns that match nothing are collected into one error; optional
// ones are logged and skipped.
func ResolveAssets(spec *grid.SweepSpec) ([]string, error) {
	var result *multierror.Error
	var paths []string
	seen := make(map[string]bool)
	for _, asset := range spec.Assets {
		pattern := asset.Pattern
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(spec.BaseDir, pattern)
		}
		matches, err := zglob.Glob(pattern)
		if err != nil || len(matches) == 0 {
			if asset.Required {
				result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrMissingAsset{
					Pattern:   asset.Pattern,
					SearchDir: spec.BaseDir,
				}))
			} else {
				log.Warnf("optional asset pattern %s matched nothing under %s", asset.Pattern, spec.BaseDir)
			}
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if info.IsDir() {
				continue
			}
			if !seen[match] {
				seen[match] = true
				paths = append(paths, match)
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return paths, nil
}
