package render

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/grid"
	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// Renderer applies a sweep's bindings to its base configuration documents.
// The base documents are parsed once; every render works on a deep copy, so
// rendering is a pure function of the bases and one job's assignment and
// re-rendering a job yields byte-identical output.
type Renderer struct {
	spec *grid.SweepSpec
	base map[string]*Document
}

// NewRenderer loads the base documents referenced by the spec.
func NewRenderer(spec *grid.SweepSpec) (*Renderer, error) {
	base := make(map[string]*Document, 2)
	doc, err := FromFilePath(filepath.Join(spec.BaseDir, spec.Configs.Run))
	if err != nil {
		return nil, err
	}
	base[grid.DocumentRun] = doc
	if spec.Configs.State != "" {
		doc, err := FromFilePath(filepath.Join(spec.BaseDir, spec.Configs.State))
		if err != nil {
			return nil, err
		}
		base[grid.DocumentState] = doc
	}
	return &Renderer{spec: spec, base: base}, nil
}

// Render produces the rendered documents for one job, keyed by the file name
// each is staged under in the job's workspace. The run document is named
// run_<jobId>.json; secondary documents keep their base file names so
// relative references from the run document stay valid.
func (renderer *Renderer) Render(job *grid.JobDefinition) (map[string][]byte, error) {
	rendered := make(map[string][]byte, len(renderer.base))
	for name, base := range renderer.base {
		doc := base.DeepCopy()
		for _, binding := range renderer.spec.Bindings {
			if binding.Document != name {
				continue
			}
			value, ok := job.Value(binding.Parameter)
			if !ok {
				return nil, errors.WithStack(&sweeperrors.ErrBinding{
					Path:      binding.Path,
					Parameter: binding.Parameter,
					Message:   "parameter not present in job assignment",
				})
			}
			var err error
			if binding.Anchor == "" {
				err = applyLiteral(doc, binding, value)
			} else {
				err = applySplice(doc, binding, value)
			}
			if err != nil {
				return nil, errors.WithMessagef(err, "rendering %s document for job %s", name, job.Id)
			}
		}
		data, err := doc.Marshal()
		if err != nil {
			return nil, err
		}
		rendered[renderer.targetFileName(name, job)] = data
	}
	return rendered, nil
}

// RunConfigFileName returns the file name the rendered run configuration is
// staged under in a job's workspace.
func RunConfigFileName(jobId string) string {
	return fmt.Sprintf("run_%s.json", jobId)
}

// StateConfigFileName returns the file name the rendered state configuration
// is staged under, or "" if the spec has no state document.
func StateConfigFileName(spec *grid.SweepSpec) string {
	if spec.Configs.State == "" {
		return ""
	}
	return filepath.Base(spec.Configs.State)
}

func (renderer *Renderer) targetFileName(document string, job *grid.JobDefinition) string {
	if document == grid.DocumentRun {
		return RunConfigFileName(job.Id)
	}
	return StateConfigFileName(renderer.spec)
}

// applyLiteral replaces the whole field with the parameter value, which must
// have the same JSON kind as the base value.
func applyLiteral(doc *Document, binding *grid.Binding, value interface{}) error {
	base, err := doc.Get(binding.Path)
	if err != nil {
		return err
	}
	next, err := jsonValue(value)
	if err != nil {
		return err
	}
	if jsonKind(next) != jsonKind(base) {
		return errors.WithStack(&sweeperrors.ErrBinding{
			Path:      binding.Path,
			Parameter: binding.Parameter,
			Message:   fmt.Sprintf("cannot replace %s field with %s value", jsonKind(base), jsonKind(next)),
		})
	}
	return doc.Set(binding.Path, next)
}

// applySplice replaces the binding's anchor token inside the field's string.
// The anchor must occur exactly once; zero or several occurrences is an
// error, never a first-match substitution.
func applySplice(doc *Document, binding *grid.Binding, value interface{}) error {
	base, err := doc.Get(binding.Path)
	if err != nil {
		return err
	}
	s, ok := base.(string)
	if !ok {
		return errors.WithStack(&sweeperrors.ErrBinding{
			Path:      binding.Path,
			Parameter: binding.Parameter,
			Message:   fmt.Sprintf("splice target is %s, want string", jsonKind(base)),
		})
	}
	switch n := strings.Count(s, binding.Anchor); {
	case n == 0:
		return errors.WithStack(&sweeperrors.ErrBinding{
			Path:      binding.Path,
			Parameter: binding.Parameter,
			Message:   fmt.Sprintf("anchor %q not found in %q", binding.Anchor, s),
		})
	case n > 1:
		return errors.WithStack(&sweeperrors.ErrBinding{
			Path:      binding.Path,
			Parameter: binding.Parameter,
			Message:   fmt.Sprintf("anchor %q is ambiguous in %q (%d occurrences)", binding.Anchor, s, n),
		})
	}
	text, err := scalarText(value)
	if err != nil {
		return err
	}
	return doc.Set(binding.Path, strings.Replace(s, binding.Anchor, text, 1))
}

// jsonValue converts a parameter value into its JSON document representation.
func jsonValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return json.Number(strconv.Itoa(v)), nil
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(v, 10)), nil
	case float64:
		return json.Number(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case json.Number:
		return v, nil
	case string:
		return v, nil
	case bool:
		return v, nil
	}
	return nil, errors.WithStack(&sweeperrors.ErrInvalidArgument{
		Name:    "value",
		Value:   value,
		Message: fmt.Sprintf("unsupported parameter value type %T", value),
	})
}

func scalarText(value interface{}) (string, error) {
	converted, err := jsonValue(value)
	if err != nil {
		return "", err
	}
	switch v := converted.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", errors.WithStack(&sweeperrors.ErrInvalidArgument{
		Name:  "value",
		Value: value,
	})
}

func jsonKind(value interface{}) string {
	switch value.(type) {
	case json.Number:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
