// Package scheduler defines the narrow cluster-scheduler abstraction and the
// batch submitter and status tracker built on top of it. The orchestrator
// core only ever talks to a Scheduler, so everything here is testable against
// a fake without touching a real cluster.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// JobState is the scheduler's own view of a submitted job.
type JobState string

const (
	// StateQueued means the handle is known but the job has not started.
	StateQueued JobState = "Queued"
	// StateRunning means the job is executing.
	StateRunning JobState = "Running"
	// StateFinished means the scheduler reports the job done, successfully
	// or not; which of the two is decided by the workspace status marker.
	StateFinished JobState = "Finished"
	// StateUnknown means the scheduler does not know the handle.
	StateUnknown JobState = "Unknown"
)

// Scheduler is the cluster scheduler contract: submit a script from a
// working directory, poll a handle, relay a cancel. Implementations must be
// safe for concurrent use.
type Scheduler interface {
	Submit(ctx context.Context, workDir, script string) (string, error)
	Status(ctx context.Context, handle string) (JobState, error)
	Cancel(ctx context.Context, handle string) error
}

// Markers a job script writes to its workspace status file on completion.
const (
	MarkerSucceeded = "SUCCESS"
	MarkerFailed    = "FAILED"
)

// JobStatus is the orchestrator's derived view of a job, combining the
// workspace status marker with the scheduler state.
type JobStatus string

const (
	Pending   JobStatus = "Pending"
	Submitted JobStatus = "Submitted"
	Running   JobStatus = "Running"
	Succeeded JobStatus = "Succeeded"
	Failed    JobStatus = "Failed"
	Unknown   JobStatus = "Unknown"
)

var statesToIncludeInSummary = []JobStatus{
	Pending,
	Submitted,
	Running,
	Succeeded,
	Failed,
	Unknown,
}

// States where the job makes no further progress without operator action.
// Unknown is inactive: it is only derived from anomalies that polling alone
// never resolves.
var inactiveStates = []JobStatus{
	Succeeded,
	Failed,
	Unknown,
}

// JobInfo is the tracked state of one job.
type JobInfo struct {
	Status     JobStatus
	LastUpdate time.Time
}

// WatchContext keeps track of the current status of each job while polling.
// It is not threadsafe and is expected to only ever be used in a single
// thread.
type WatchContext struct {
	state        map[string]*JobInfo
	stateSummary map[JobStatus]int
}

func NewWatchContext() *WatchContext {
	return &WatchContext{
		state:        make(map[string]*JobInfo, 10),
		stateSummary: make(map[JobStatus]int, 6),
	}
}

// Update records a freshly derived status and reports whether it changed.
func (watch *WatchContext) Update(jobId string, status JobStatus) bool {
	info, exists := watch.state[jobId]
	if !exists {
		info = &JobInfo{}
		watch.state[jobId] = info
	}

	previous := info.Status
	info.Status = status
	info.LastUpdate = time.Now()
	watch.updateStateSummary(previous, status)
	return previous != status
}

func (watch *WatchContext) updateStateSummary(oldStatus JobStatus, newStatus JobStatus) {
	if newStatus == "" {
		return
	}
	if oldStatus == newStatus {
		return
	}
	if oldStatus != "" {
		watch.stateSummary[oldStatus]--
	}
	watch.stateSummary[newStatus]++
}

func (watch *WatchContext) GetJobInfo(jobId string) *JobInfo {
	return watch.state[jobId]
}

func (watch *WatchContext) GetCurrentStateSummary() string {
	first := true
	var summary strings.Builder

	for _, state := range statesToIncludeInSummary {
		if !first {
			summary.WriteString(", ")
		}
		first = false
		summary.WriteString(fmt.Sprintf("%s: %3d", state, watch.stateSummary[state]))
	}

	return summary.String()
}

func (watch *WatchContext) GetNumberOfJobsInStates(states []JobStatus) int {
	numberOfJobs := 0
	for _, state := range states {
		numberOfJobs += watch.stateSummary[state]
	}
	return numberOfJobs
}

// Return number of jobs that will not progress further:
func (watch *WatchContext) GetNumberOfInactiveJobs() int {
	return watch.GetNumberOfJobsInStates(inactiveStates)
}

// Return number of jobs:
func (watch *WatchContext) GetNumberOfJobs() int {
	numberOfJobs := 0
	for _, num := range watch.stateSummary {
		numberOfJobs += num
	}
	return numberOfJobs
}
