package sweepctl

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/polysweep/polysweep/internal/scheduler"
	"github.com/polysweep/polysweep/internal/workspace"
)

// ResultsFileName is the per-run CSV written by Analyze into the results
// directory.
const ResultsFileName = "sweep_results.csv"

// metricNames are the energy terms scraped from the solver log, in CSV
// column order.
var metricNames = []string{
	"total_energy",
	"target_match",
	"collision_barrier",
	"smooth_layer_thickness",
	"boundary_smoothing",
}

var metricPatterns = map[string]*regexp.Regexp{
	"total_energy":           metricPattern("total_energy"),
	"target_match":           metricPattern("target_match"),
	"collision_barrier":      metricPattern("collision_barrier"),
	"smooth_layer_thickness": metricPattern("smooth_layer_thickness"),
	"boundary_smoothing":     metricPattern("boundary_smoothing"),
}

func metricPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`"%s":\s*([-+]?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)`, name))
}

// jobResult is one job's analyzed outcome: derived status, energy terms
// scraped from the solver log, and the output file count.
type jobResult struct {
	Job     *workspace.JobRecord
	Status  scheduler.JobStatus
	Metrics map[string]float64
	// HasLog reports whether a scheduler log was found; Converged is only
	// meaningful when it was.
	HasLog      bool
	Converged   bool
	OutputFiles int
}

// Analyze derives every job's status, scrapes final metric values from the
// solver logs, writes the per-job CSV, and prints a summary with the best
// parameter sets.
func (a *App) Analyze(manifestPath string) error {
	manifest, err := workspace.ManifestFromFilePath(manifestPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Analyzing %d jobs of run %s\n", len(manifest.Jobs), manifest.Name)

	statuses := a.tracker().StatusAll(context.Background(), manifest)
	results := make([]*jobResult, 0, len(statuses))
	for _, status := range statuses {
		result := &jobResult{Job: status.Job, Status: status.Status, Metrics: map[string]float64{}}
		if err := collectMetrics(manifest.WorkspaceDir(status.Job), result); err != nil {
			log.Warnf("No metrics for job %s: %s", status.Job.Id, err)
		}
		results = append(results, result)
	}

	csvPath := filepath.Join(manifest.Dir, ResultsFileName)
	if err := writeResultsCSV(csvPath, manifest, results); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Detailed results written to %s\n", csvPath)

	a.printAnalysisSummary(manifest, results)
	return nil
}

// collectMetrics scrapes the newest scheduler log in dir. The last occurrence
// of each energy term wins; the solver logs them once per optimization
// iteration.
func collectMetrics(dir string, result *jobResult) error {
	logPath, err := newestSchedulerLog(dir)
	if err != nil {
		return err
	}
	if logPath != "" {
		data, err := os.ReadFile(logPath)
		if err != nil {
			return errors.WithStack(err)
		}
		content := string(data)
		result.HasLog = true
		for name, pattern := range metricPatterns {
			matches := pattern.FindAllStringSubmatch(content, -1)
			if len(matches) == 0 {
				continue
			}
			value, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
			if err != nil {
				continue
			}
			result.Metrics[name] = value
		}
		result.Converged = !strings.Contains(content, "Reached iteration limit")
	}

	outputs, err := zglob.Glob(filepath.Join(dir, "*.vtu"))
	if err != nil {
		return errors.WithStack(err)
	}
	result.OutputFiles = len(outputs)
	return nil
}

func newestSchedulerLog(dir string) (string, error) {
	logs, err := zglob.Glob(filepath.Join(dir, "slurm_*.out"))
	if err != nil {
		return "", errors.WithStack(err)
	}
	if len(logs) == 0 {
		return "", nil
	}
	// Scheduler ids grow monotonically, so the lexically last log belongs to
	// the latest submission.
	sort.Strings(logs)
	return logs[len(logs)-1], nil
}

func writeResultsCSV(path string, manifest *workspace.Manifest, results []*jobResult) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()

	parameters := parameterNames(manifest)
	header := []string{"job_id", "status"}
	header = append(header, parameters...)
	header = append(header, metricNames...)
	header = append(header, "converged", "num_output_files")

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return errors.WithStack(err)
	}
	for _, result := range results {
		row := []string{result.Job.Id, string(result.Status)}
		for _, name := range parameters {
			row = append(row, parameterText(result.Job, name))
		}
		for _, metric := range metricNames {
			if value, ok := result.Metrics[metric]; ok {
				row = append(row, strconv.FormatFloat(value, 'e', 6, 64))
			} else {
				row = append(row, "")
			}
		}
		if result.HasLog {
			row = append(row, strconv.FormatBool(result.Converged))
		} else {
			row = append(row, "")
		}
		row = append(row, strconv.Itoa(result.OutputFiles))
		if err := writer.Write(row); err != nil {
			return errors.WithStack(err)
		}
	}
	writer.Flush()
	return errors.WithStack(writer.Error())
}

func (a *App) printAnalysisSummary(manifest *workspace.Manifest, results []*jobResult) {
	watch := scheduler.NewWatchContext()
	for _, result := range results {
		watch.Update(result.Job.Id, result.Status)
	}
	fmt.Fprintf(a.Out, "\n%s\n", watch.GetCurrentStateSummary())

	best := successfulByEnergy(results)
	if len(best) > 3 {
		best = best[:3]
	}
	if len(best) > 0 {
		fmt.Fprintf(a.Out, "\nBest parameter sets by total energy:\n")
		for i, result := range best {
			fmt.Fprintf(a.Out, "%d. %s: total_energy %.6e", i+1, result.Job.Id, result.Metrics["total_energy"])
			if value, ok := result.Metrics["target_match"]; ok {
				fmt.Fprintf(a.Out, ", target_match %.6e", value)
			}
			if result.HasLog {
				fmt.Fprintf(a.Out, ", converged %t", result.Converged)
			}
			fmt.Fprintf(a.Out, "\n")
			for _, parameter := range result.Job.Parameters {
				fmt.Fprintf(a.Out, "   %s = %v\n", parameter.Name, parameter.Value)
			}
		}
	}

	fmt.Fprintf(a.Out, "\nParameter ranges tested:\n")
	for _, name := range parameterNames(manifest) {
		fmt.Fprintf(a.Out, "  %s: %s\n", name, strings.Join(parameterValues(manifest, name), ", "))
	}
}

// successfulByEnergy returns the succeeded jobs that have a total energy,
// best first.
func successfulByEnergy(results []*jobResult) []*jobResult {
	var best []*jobResult
	for _, result := range results {
		if result.Status != scheduler.Succeeded {
			continue
		}
		if _, ok := result.Metrics["total_energy"]; !ok {
			continue
		}
		best = append(best, result)
	}
	sort.SliceStable(best, func(i, j int) bool {
		return best[i].Metrics["total_energy"] < best[j].Metrics["total_energy"]
	})
	return best
}

// parameterNames returns the parameter names of the run in declaration
// order.
func parameterNames(manifest *workspace.Manifest) []string {
	var names []string
	seen := map[string]bool{}
	for _, job := range manifest.Jobs {
		for _, parameter := range job.Parameters {
			if !seen[parameter.Name] {
				seen[parameter.Name] = true
				names = append(names, parameter.Name)
			}
		}
	}
	return names
}

// parameterValues returns the distinct values tested for one parameter, in
// first-seen order.
func parameterValues(manifest *workspace.Manifest, name string) []string {
	var values []string
	seen := map[string]bool{}
	for _, job := range manifest.Jobs {
		text := parameterText(job, name)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		values = append(values, text)
	}
	return values
}

func parameterText(job *workspace.JobRecord, name string) string {
	for _, parameter := range job.Parameters {
		if parameter.Name == name {
			return fmt.Sprintf("%v", parameter.Value)
		}
	}
	return ""
}
