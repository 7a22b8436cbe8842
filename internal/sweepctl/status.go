package sweepctl

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/common/logging"
	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

// Status derives and prints the current status of every job in the manifest.
// Anomalies, jobs whose terminal state cannot be trusted, are always surfaced.
func (a *App) Status(manifestPath string) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	results := a.tracker().StatusAll(context.Background(), manifest)

	watch := scheduler.NewWatchContext()
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintf(w, "JOB\tSTATUS\tSCHEDULER ID\tPARAMETERS\n")
	for _, result := range results {
		watch.Update(result.Job.Id, result.Status)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			result.Job.Id, result.Status, result.Job.SchedulerId, formatParameters(result.Job))
	}
	w.Flush()
	fmt.Fprintf(a.Out, "\n%s\n", watch.GetCurrentStateSummary())

	for _, result := range results {
		if result.Error != nil {
			logging.WithStacktrace(log.NewEntry(log.StandardLogger()), result.Error).Warnf("%s", result.Error)
		}
	}
	return nil
}

func formatParameters(job *workspace.JobRecord) string {
	assignments := make([]string, 0, len(job.Parameters))
	for _, parameter := range job.Parameters {
		assignments = append(assignments, fmt.Sprintf("%s=%v", parameter.Name, parameter.Value))
	}
	return strings.Join(assignments, " ")
}
