// Package slurm drives a SLURM cluster through its command line tools. It
// shells out to sbatch, squeue, sacct and scancel rather than talking to
// slurmrestd, since the command line tools are present on every login node
// regardless of cluster configuration.
package slurm

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// Client submits and tracks jobs via the SLURM command line tools.
type Client struct {
	// Commands to invoke. These are looked up on PATH unless absolute.
	SbatchCmd  string
	SqueueCmd  string
	SacctCmd   string
	ScancelCmd string

	runCommand func(ctx context.Context, dir string, name string, args ...string) (string, error)
}

var _ scheduler.Scheduler = (*Client)(nil)

func NewClient() *Client {
	client := &Client{
		SbatchCmd:  "sbatch",
		SqueueCmd:  "squeue",
		SacctCmd:   "sacct",
		ScancelCmd: "scancel",
	}
	client.runCommand = client.execCommand
	return client
}

func (client *Client) execCommand(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Submit runs sbatch from within workDir so that relative paths inside the
// script resolve against the job workspace. The returned handle is the
// numeric SLURM job id.
func (client *Client) Submit(ctx context.Context, workDir string, script string) (string, error) {
	jobId := filepath.Base(workDir)
	out, err := client.runCommand(ctx, workDir, client.SbatchCmd, script)
	if err != nil {
		return "", errors.WithStack(&sweeperrors.ErrSubmission{
			JobId:  jobId,
			Output: strings.TrimSpace(out),
			// A non-zero exit proves sbatch ran and rejected the job, unless
			// the context killed it mid-flight.
			Confirmed: isExitError(err) && ctx.Err() == nil,
			Message:   err.Error(),
		})
	}
	handle, ok := parseSbatchOutput(out)
	if !ok {
		// sbatch exited zero, so the job may well be queued. Unconfirmed:
		// retrying now could submit it twice.
		return "", errors.WithStack(&sweeperrors.ErrSubmission{
			JobId:     jobId,
			Output:    strings.TrimSpace(out),
			Confirmed: false,
			Message:   "could not parse a job id from sbatch output",
		})
	}
	return handle, nil
}

// Status queries squeue first and falls back to sacct, since squeue forgets
// jobs shortly after they leave the queue. An empty answer from both means
// the job is gone from SLURM's view entirely.
func (client *Client) Status(ctx context.Context, handle string) (scheduler.JobState, error) {
	out, err := client.runCommand(ctx, "", client.SqueueCmd, "-h", "-j", handle, "-o", "%T")
	if err == nil {
		if state, ok := parseStateOutput(out); ok {
			return mapSlurmState(state), nil
		}
	}
	out, err = client.runCommand(ctx, "", client.SacctCmd, "-n", "-X", "-j", handle, "-o", "State")
	if err != nil {
		err = errors.WithMessagef(err, "failed to query state of job %s: %s", handle, strings.TrimSpace(out))
		return scheduler.StateUnknown, errors.WithStack(err)
	}
	state, ok := parseStateOutput(out)
	if !ok {
		return scheduler.StateUnknown, nil
	}
	return mapSlurmState(state), nil
}

func (client *Client) Cancel(ctx context.Context, handle string) error {
	out, err := client.runCommand(ctx, "", client.ScancelCmd, handle)
	if err != nil {
		err = errors.WithMessagef(err, "failed to cancel job %s: %s", handle, strings.TrimSpace(out))
		return errors.WithStack(err)
	}
	return nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// parseSbatchOutput extracts the job id from sbatch's confirmation line,
// "Submitted batch job <id>". Clusters with submission plugins may print
// extra lines around it.
func parseSbatchOutput(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Submitted batch job") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields[len(fields)-1], true
	}
	return "", false
}

// parseStateOutput returns the first field of the first non-empty line.
// sacct suffixes states of requeued jobs with "+", which we strip.
func parseStateOutput(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return strings.TrimSuffix(fields[0], "+"), true
	}
	return "", false
}

func mapSlurmState(state string) scheduler.JobState {
	switch state {
	case "PENDING", "CONFIGURING", "SUSPENDED", "RESV_DEL_HOLD", "SPECIAL_EXIT":
		return scheduler.StateQueued
	case "RUNNING", "COMPLETING":
		return scheduler.StateRunning
	case "COMPLETED", "FAILED", "CANCELLED", "TIMEOUT", "OUT_OF_MEMORY",
		"NODE_FAIL", "BOOT_FAIL", "DEADLINE", "PREEMPTED":
		return scheduler.StateFinished
	default:
		return scheduler.StateUnknown
	}
}
