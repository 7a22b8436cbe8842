package sweepctl

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/common/logging"
	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

// Watch polls job statuses on the configured interval and prints a state
// summary line whenever any job changes status. With exitIfInactive it
// returns once no job can progress without operator action.
func (a *App) Watch(manifestPath string, exitIfInactive bool) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Watching run %s (%d jobs)\n", manifest.Name, len(manifest.Jobs))

	tracker := a.tracker()
	watch := scheduler.NewWatchContext()
	for {
		results := tracker.StatusAll(context.Background(), manifest)
		changed := false
		for _, result := range results {
			if watch.Update(result.Job.Id, result.Status) {
				changed = true
				if result.Error != nil {
					logging.WithStacktrace(log.NewEntry(log.StandardLogger()), result.Error).Warnf("%s", result.Error)
				}
			}
		}
		if changed {
			fmt.Fprintf(a.Out, "%s | %s\n", time.Now().Format(time.Stamp), watch.GetCurrentStateSummary())
		}
		if exitIfInactive && watch.GetNumberOfInactiveJobs() == watch.GetNumberOfJobs() {
			fmt.Fprintf(a.Out, "All %d jobs are inactive\n", watch.GetNumberOfJobs())
			return nil
		}
		time.Sleep(a.Params.PollInterval)
	}
}
