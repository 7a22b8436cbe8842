package sweepctl

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/scheduler/slurm"
	"github.com/polysweep/polysweep/internal/workspace"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the application's output.
	Out io.Writer
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	// Directory holding one workspace per job plus the run manifest.
	ResultsDir string
	// Build directory of the solver, passed through to generated job
	// scripts.
	PolyfemBuildDir string
	// Build directories of the remeshing tools. May be empty for sweeps
	// that do not remesh.
	MmgBuildDir      string
	FtetwildBuildDir string
	// Number of additional submission attempts for jobs the scheduler
	// confirmed rejecting.
	SubmitRetries uint
	// Interval between scheduler polls in watch mode.
	PollInterval time.Duration
	// How long a scheduler answer is reused before the queue is asked again.
	StatusCacheTTL time.Duration
	// Overrides for the SLURM command names, for clusters that wrap them.
	Slurm SlurmParams
	// Scheduler used to submit and track jobs. Defaults to the SLURM command
	// line client; tests substitute a fake.
	Scheduler scheduler.Scheduler
}

// SlurmParams overrides the SLURM command line tools the client invokes.
// Empty fields keep the standard names.
type SlurmParams struct {
	SbatchCmd  string
	SqueueCmd  string
	SacctCmd   string
	ScancelCmd string
}

// New instantiates an App with default parameters and standard output.
func New() *App {
	return &App{
		Params: &Params{
			ResultsDir:     "results",
			SubmitRetries:  2,
			PollInterval:   30 * time.Second,
			StatusCacheTTL: 15 * time.Second,
		},
		Out: os.Stdout,
	}
}

// validateParams validates a.Params.
func (a *App) validateParams() error {
	if a.Params.ResultsDir == "" {
		return errors.New("results directory must be configured")
	}
	return nil
}

func (a *App) scheduler() scheduler.Scheduler {
	if a.Params.Scheduler != nil {
		return a.Params.Scheduler
	}
	client := slurm.NewClient()
	if a.Params.Slurm.SbatchCmd != "" {
		client.SbatchCmd = a.Params.Slurm.SbatchCmd
	}
	if a.Params.Slurm.SqueueCmd != "" {
		client.SqueueCmd = a.Params.Slurm.SqueueCmd
	}
	if a.Params.Slurm.SacctCmd != "" {
		client.SacctCmd = a.Params.Slurm.SacctCmd
	}
	if a.Params.Slurm.ScancelCmd != "" {
		client.ScancelCmd = a.Params.Slurm.ScancelCmd
	}
	return client
}

func (a *App) tracker() *scheduler.Tracker {
	return scheduler.NewTracker(a.scheduler(), a.Params.StatusCacheTTL)
}

// previousManifest loads the manifest left by an earlier generate round, or
// nil if there is none.
func (a *App) previousManifest() *workspace.Manifest {
	manifest, err := workspace.ManifestFromFilePath(a.Params.ResultsDir)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			log.Warnf("Ignoring unreadable manifest in %s: %s", a.Params.ResultsDir, err)
		}
		return nil
	}
	return manifest
}
