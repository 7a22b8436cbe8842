package sweepctl

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/grid"
	"github.com/polysweep/polysweep/internal/jobscript"
	"github.com/polysweep/polysweep/internal/render"
	"github.com/polysweep/polysweep/internal/sweeperrors"
	"github.com/polysweep/polysweep/internal/workspace"
)

// Generate expands the sweep described by specFile into jobs, stages one
// workspace per job under the results directory, and writes the run manifest.
// Every config is rendered before the first filesystem side effect, so a spec
// fault never leaves half a sweep on disk.
func (a *App) Generate(specFile string, skipExisting bool, maxJobs int, dryRun bool) error {
	if err := a.validateParams(); err != nil {
		return err
	}
	spec, err := grid.FromFilePath(specFile)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	jobs, err := grid.Expand(spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Sweep %s expands to %d jobs\n", spec.Name, len(jobs))
	if maxJobs > 0 && len(jobs) > maxJobs {
		jobs = jobs[:maxJobs]
		fmt.Fprintf(a.Out, "Limiting to the first %d jobs\n", maxJobs)
	}

	renderer, err := render.NewRenderer(spec)
	if err != nil {
		return err
	}
	assets, err := workspace.ResolveAssets(spec)
	if err != nil {
		return err
	}
	scripts, err := a.scriptRenderer(spec)
	if err != nil {
		return err
	}

	builder := workspace.NewBuilder(a.Params.ResultsDir)
	manifest := workspace.NewManifest(a.Params.ResultsDir, spec, specFile)
	previous := a.previousManifest()

	built, skipped := 0, 0
	for _, job := range jobs {
		documents, err := renderer.Render(job)
		if err != nil {
			return err
		}
		script, err := scripts.Render(a.scriptParams(spec, job))
		if err != nil {
			return err
		}
		record := &workspace.JobRecord{
			Id:         job.Id,
			Parameters: job.Parameters,
			ConfigFile: render.RunConfigFileName(job.Id),
			ScriptFile: jobscript.DefaultScriptName,
			Workspace:  job.Id,
		}
		if dryRun {
			fmt.Fprintf(a.Out, "Would stage %s\n", builder.Dir(job.Id))
			built++
			continue
		}
		_, err = builder.Build(&workspace.Job{
			Id:         job.Id,
			Documents:  documents,
			AssetPaths: assets,
			ScriptName: jobscript.DefaultScriptName,
			Script:     script,
		})
		if err != nil {
			var conflict *sweeperrors.ErrWorkspaceConflict
			if skipExisting && errors.As(err, &conflict) {
				log.Infof("Skipping job %s: workspace %s is already populated", job.Id, conflict.Dir)
				// Keep the earlier round's record so scheduler ids survive
				// a resumed generate.
				if previous != nil {
					if old := previous.Job(job.Id); old != nil {
						record = old
					}
				}
				manifest.Jobs = append(manifest.Jobs, record)
				skipped++
				continue
			}
			return err
		}
		manifest.Jobs = append(manifest.Jobs, record)
		built++
	}

	if dryRun {
		fmt.Fprintf(a.Out, "Dry run: would stage %d workspaces under %s\n", built, a.Params.ResultsDir)
		return nil
	}
	if err := manifest.Save(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Staged %d workspaces under %s (%d skipped)\n", built, a.Params.ResultsDir, skipped)
	fmt.Fprintf(a.Out, "Manifest written to %s\n", filepath.Join(a.Params.ResultsDir, workspace.ManifestFileName))
	return nil
}

func (a *App) scriptRenderer(spec *grid.SweepSpec) (*jobscript.Renderer, error) {
	if spec.ScriptTemplate == "" {
		return jobscript.NewDefaultRenderer(), nil
	}
	path := spec.ScriptTemplate
	if !filepath.IsAbs(path) {
		path = filepath.Join(spec.BaseDir, path)
	}
	return jobscript.FromFilePath(path)
}

func (a *App) scriptParams(spec *grid.SweepSpec, job *grid.JobDefinition) *jobscript.Params {
	return &jobscript.Params{
		JobId:            job.Id,
		ConfigFile:       render.RunConfigFileName(job.Id),
		StateFile:        render.StateConfigFileName(spec),
		Walltime:         spec.HPC.Walltime,
		Nodes:            spec.HPC.Nodes,
		Cpus:             spec.HPC.Cpus,
		Memory:           spec.HPC.Memory,
		PolyfemBuildDir:  a.Params.PolyfemBuildDir,
		MmgBuildDir:      a.Params.MmgBuildDir,
		FtetwildBuildDir: a.Params.FtetwildBuildDir,
		StatusFile:       workspace.StatusFileName,
	}
}
