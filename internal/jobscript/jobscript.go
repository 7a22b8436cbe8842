// Package jobscript renders scheduler job scripts. The rendered script's
// contract with the orchestrator is fixed: it verifies its staged inputs,
// runs the solver with the workspace as working directory, writes SUCCESS or
// FAILED to the status marker, and exits non-zero on failure. Nothing else
// about the solver is interpreted.
package jobscript

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// DefaultScriptName is the file name job scripts are staged under.
const DefaultScriptName = "slurm_job.sh"

// Params carries everything a script template may reference. Templates
// referencing anything else fail at render time.
type Params struct {
	JobId      string
	ConfigFile string
	// StateFile is empty when the sweep has no secondary document.
	StateFile string
	Walltime  string
	Nodes     int
	Cpus      int
	Memory    string
	// PolyfemBuildDir locates the solver binary. MmgBuildDir and
	// FtetwildBuildDir locate the remeshing tools and may be empty for
	// sweeps that do not remesh.
	PolyfemBuildDir  string
	MmgBuildDir      string
	FtetwildBuildDir string
	StatusFile       string
}

// Validate checks that the resource profile and required paths are complete.
// Rendering an incomplete profile is an error before submission, not an empty
// substitution discovered on the cluster.
func (params *Params) Validate() error {
	var result *multierror.Error
	required := []struct {
		name  string
		value string
	}{
		{"jobId", params.JobId},
		{"configFile", params.ConfigFile},
		{"walltime", params.Walltime},
		{"memory", params.Memory},
		{"polyfemBuildDir", params.PolyfemBuildDir},
		{"statusFile", params.StatusFile},
	}
	for _, field := range required {
		if field.value == "" {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidArgument{
				Name:    field.name,
				Value:   field.value,
				Message: "must be provided",
			}))
		}
	}
	if params.Nodes <= 0 {
		result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidArgument{
			Name:    "nodes",
			Value:   params.Nodes,
			Message: "must be positive",
		}))
	}
	if params.Cpus <= 0 {
		result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidArgument{
			Name:    "cpus",
			Value:   params.Cpus,
			Message: "must be positive",
		}))
	}
	return result.ErrorOrNil()
}

// Renderer renders job scripts from a text template.
type Renderer struct {
	template *template.Template
}

// NewRenderer parses a script template from source text.
func NewRenderer(name, text string) (*Renderer, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		err = errors.WithMessagef(err, "failed to parse job script template %s", name)
		return nil, errors.WithStack(err)
	}
	return &Renderer{template: tmpl}, nil
}

// FromFilePath loads a script template from a file.
func FromFilePath(filePath string) (*Renderer, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewRenderer(filepath.Base(filePath), string(data))
}

// NewDefaultRenderer returns a renderer over the built-in SLURM template.
func NewDefaultRenderer() *Renderer {
	return &Renderer{
		template: template.Must(
			template.New(DefaultScriptName).Option("missingkey=error").Parse(defaultTemplate)),
	}
}

// Render fills the template with params. Every placeholder must resolve; a
// placeholder the params do not provide is a render-time error.
func (renderer *Renderer) Render(params *Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := renderer.template.Execute(&buf, params); err != nil {
		err = errors.WithMessagef(err, "failed to render job script for %s", params.JobId)
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

const defaultTemplate = `#!/bin/bash
#SBATCH --job-name={{.JobId}}
#SBATCH --output=slurm_%j.out
#SBATCH --error=slurm_%j.err
#SBATCH --time={{.Walltime}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks-per-node=1
#SBATCH --cpus-per-task={{.Cpus}}
#SBATCH --mem={{.Memory}}

set -u
cd "${SLURM_SUBMIT_DIR:-$(dirname "$0")}"

for f in {{.ConfigFile}}{{if .StateFile}} {{.StateFile}}{{end}}; do
    if [ ! -f "$f" ]; then
        echo "missing staged file: $f" >&2
        echo "FAILED" > {{.StatusFile}}
        exit 1
    fi
done
{{if .MmgBuildDir}}
export MMG_BUILD_DIR="{{.MmgBuildDir}}"{{end}}{{if .FtetwildBuildDir}}
export FTETWILD_BUILD_DIR="{{.FtetwildBuildDir}}"{{end}}

"{{.PolyfemBuildDir}}/PolyFEM_bin" --json {{.ConfigFile}} --output_dir .
status=$?

if [ $status -eq 0 ]; then
    echo "SUCCESS" > {{.StatusFile}}
else
    echo "FAILED" > {{.StatusFile}}
fi
exit $status
`
