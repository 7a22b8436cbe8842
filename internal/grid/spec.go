// Package grid loads sweep specifications and expands them into concrete job
// definitions, one per point of the parameter grid.
package grid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// Names of the base documents bindings may target.
const (
	DocumentRun   = "run"
	DocumentState = "state"
)

// SweepSpec declares a parameter sweep: the parameters with their candidate
// values, the base configuration documents and the bindings tying fields in
// them to parameters, the static assets each job needs, and the resource
// profile jobs are submitted with.
type SweepSpec struct {
	// Sweep name. If empty it is set to the spec file name without extension.
	Name       string       `yaml:"name"`
	Parameters []*Parameter `yaml:"parameters"`
	Configs    ConfigRefs   `yaml:"configs"`
	Bindings   []*Binding   `yaml:"bindings"`
	Assets     []*Asset     `yaml:"assets"`
	HPC        HPCProfile   `yaml:"hpc"`
	// Path of a scheduler script template, relative to the spec file.
	// A built-in template is used if empty.
	ScriptTemplate string `yaml:"scriptTemplate"`

	// Directory containing the spec file. Config, asset, and script template
	// paths are resolved relative to it.
	BaseDir string `yaml:"-"`
}

// Parameter is one sweep dimension: a name and an ordered list of candidate
// values. Declaration order is significant; it fixes both job ordering and the
// layout of job identifiers.
type Parameter struct {
	Name string `yaml:"name"`
	// Tag prefixes this parameter's value token in job identifiers.
	// Defaults to the first character of Name.
	Tag    string        `yaml:"tag"`
	Values []interface{} `yaml:"values"`
	// Paired selects positional (zipped) expansion instead of the Cartesian
	// product. Pairing is all or nothing across the spec.
	Paired bool `yaml:"paired"`
}

// ConfigRefs points at the base configuration documents, relative to the spec
// file. Run is required. State is optional and is staged under its own file
// name so that relative references from the run config keep resolving.
type ConfigRefs struct {
	Run   string `yaml:"run"`
	State string `yaml:"state"`
}

// Binding ties one field of a base document to a parameter. With no Anchor the
// parameter value replaces the whole field (literal replace); with an Anchor
// the value replaces that one token inside the field's string (expression
// splice).
type Binding struct {
	Document  string `yaml:"document"` // "run" (the default) or "state"
	Path      string `yaml:"path"`
	Parameter string `yaml:"parameter"`
	Anchor    string `yaml:"anchor"`
}

// Asset is a glob pattern of static input files staged into each job
// workspace, resolved relative to the spec file.
type Asset struct {
	Pattern  string `yaml:"pattern"`
	Required bool   `yaml:"required"`
}

// HPCProfile is the resource request shared by all jobs in a run.
type HPCProfile struct {
	Walltime string `yaml:"walltime"`
	Nodes    int    `yaml:"nodes"`
	Cpus     int    `yaml:"cpus"`
	Memory   string `yaml:"memory"`
}

// FromFilePath loads a SweepSpec from a YAML file.
func FromFilePath(filePath string) (*SweepSpec, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	spec := &SweepSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal sweep spec %s", filePath)
		return nil, errors.WithStack(err)
	}

	// If no sweep name is provided, set it to be the filename.
	if spec.Name == "" {
		fileName := filepath.Base(filePath)
		fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
		spec.Name = fileName
	}
	spec.BaseDir = filepath.Dir(filePath)
	initialiseSweepSpec(spec)

	return spec, nil
}

func initialiseSweepSpec(spec *SweepSpec) {
	// Assign tags to parameters with none specified.
	for _, parameter := range spec.Parameters {
		if parameter.Tag == "" && parameter.Name != "" {
			parameter.Tag = string([]rune(parameter.Name)[0])
		}
	}
	for _, binding := range spec.Bindings {
		if binding.Document == "" {
			binding.Document = DocumentRun
		}
	}
}

// Paired reports whether the spec selects positional expansion.
func (spec *SweepSpec) Paired() bool {
	for _, parameter := range spec.Parameters {
		if parameter.Paired {
			return true
		}
	}
	return false
}

// Validate checks the spec for structural problems before any expansion or
// rendering happens. All faults found in one pass are aggregated and returned
// together.
func (spec *SweepSpec) Validate() error {
	var result *multierror.Error

	if len(spec.Parameters) == 0 {
		result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
			Message: "no parameters declared",
		}))
	}

	declared := make(map[string]bool, len(spec.Parameters))
	paired := 0
	for _, parameter := range spec.Parameters {
		if parameter.Name == "" {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Message: "parameter with empty name",
			}))
			continue
		}
		if declared[parameter.Name] {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Parameter: parameter.Name,
				Message:   "declared more than once",
			}))
		}
		declared[parameter.Name] = true
		if len(parameter.Values) == 0 {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Parameter: parameter.Name,
				Message:   "declares no values",
			}))
		}
		if parameter.Paired {
			paired++
		}
	}

	if paired > 0 && paired < len(spec.Parameters) {
		// Pairing is all or nothing; report every parameter left out.
		for _, parameter := range spec.Parameters {
			if !parameter.Paired && parameter.Name != "" {
				result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
					Parameter: parameter.Name,
					Message:   "not marked paired while other parameters are; pairing is all or nothing",
				}))
			}
		}
	} else if paired > 0 {
		want := len(spec.Parameters[0].Values)
		for _, parameter := range spec.Parameters[1:] {
			if len(parameter.Values) != want {
				result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
					Parameter: parameter.Name,
					Message:   fmt.Sprintf("paired value list has length %d, want %d", len(parameter.Values), want),
				}))
			}
		}
	}

	if spec.Configs.Run == "" {
		result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
			Message: "configs.run is required",
		}))
	}

	bound := make(map[string]bool, len(spec.Parameters))
	for i, binding := range spec.Bindings {
		if binding.Path == "" {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Message: fmt.Sprintf("binding %d has no path", i),
			}))
		}
		if binding.Document != DocumentRun && binding.Document != DocumentState {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Message: fmt.Sprintf("binding %d targets unknown document %q", i, binding.Document),
			}))
		}
		if binding.Document == DocumentState && spec.Configs.State == "" {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Message: fmt.Sprintf("binding %d targets the state document but configs.state is not set", i),
			}))
		}
		if !declared[binding.Parameter] {
			result = multierror.Append(result, errors.WithStack(&sweeperrors.ErrInvalidSpec{
				Parameter: binding.Parameter,
				Message:   fmt.Sprintf("referenced by binding %d but not declared", i),
			}))
		}
		bound[binding.Parameter] = true
	}
	for _, parameter := range spec.Parameters {
		if parameter.Name != "" && !bound[parameter.Name] {
			log.Warnf("parameter %s is not referenced by any binding", parameter.Name)
		}
	}

	return result.ErrorOrNil()
}
