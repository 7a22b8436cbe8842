package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

// JobDefinition is one concrete parameter assignment together with its
// derived identifier. Definitions are immutable once created.
type JobDefinition struct {
	Id string
	// Parameters holds the assignment in declaration order.
	Parameters []ParameterValue
}

// ParameterValue is a single parameter's assigned value within one job.
type ParameterValue struct {
	Name  string
	Tag   string
	Value interface{}
}

// Value returns the assigned value of the named parameter.
func (job *JobDefinition) Value(name string) (interface{}, bool) {
	for _, pv := range job.Parameters {
		if pv.Name == name {
			return pv.Value, true
		}
	}
	return nil, false
}

// Assignment returns the job's parameters as a map.
func (job *JobDefinition) Assignment() map[string]interface{} {
	rv := make(map[string]interface{}, len(job.Parameters))
	for _, pv := range job.Parameters {
		rv[pv.Name] = pv.Value
	}
	return rv
}

// Expand turns a sweep spec into its job definitions: the Cartesian product
// of all value lists in declaration order with later parameters varying
// fastest, or the positional zip of the lists when the spec is paired. Job
// identifiers are derived deterministically from the assignment, so expanding
// the same spec twice yields identical jobs. Two distinct assignments
// deriving the same identifier is an error, never a silent overwrite.
func Expand(spec *SweepSpec) ([]*JobDefinition, error) {
	if len(spec.Parameters) == 0 {
		return nil, errors.WithStack(&sweeperrors.ErrInvalidSpec{
			Message: "no parameters declared",
		})
	}

	var jobs []*JobDefinition
	if spec.Paired() {
		n := len(spec.Parameters[0].Values)
		for _, parameter := range spec.Parameters {
			if len(parameter.Values) != n {
				return nil, errors.WithStack(&sweeperrors.ErrInvalidSpec{
					Parameter: parameter.Name,
					Message:   fmt.Sprintf("paired value list has length %d, want %d", len(parameter.Values), n),
				})
			}
		}
		jobs = make([]*JobDefinition, 0, n)
		indexes := make([]int, len(spec.Parameters))
		for i := 0; i < n; i++ {
			for j := range indexes {
				indexes[j] = i
			}
			job, err := jobFromIndexes(spec, indexes)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	} else {
		counts := make([]int, len(spec.Parameters))
		total := 1
		for i, parameter := range spec.Parameters {
			if len(parameter.Values) == 0 {
				return nil, errors.WithStack(&sweeperrors.ErrInvalidSpec{
					Parameter: parameter.Name,
					Message:   "declares no values",
				})
			}
			counts[i] = len(parameter.Values)
			total *= counts[i]
		}
		jobs = make([]*JobDefinition, 0, total)
		indexes := make([]int, len(counts))
		for {
			job, err := jobFromIndexes(spec, indexes)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)

			i := len(indexes) - 1
			for ; i >= 0; i-- {
				indexes[i]++
				if indexes[i] < counts[i] {
					break
				}
				indexes[i] = 0
			}
			if i < 0 {
				break
			}
		}
	}

	seen := make(map[string]int, len(jobs))
	for i, job := range jobs {
		if j, ok := seen[job.Id]; ok {
			return nil, errors.WithStack(&sweeperrors.ErrBinding{
				Message: fmt.Sprintf(
					"assignments %v and %v both derive job identifier %q; values must format distinctly",
					jobs[j].Assignment(), job.Assignment(), job.Id),
			})
		}
		seen[job.Id] = i
	}

	return jobs, nil
}

func jobFromIndexes(spec *SweepSpec, indexes []int) (*JobDefinition, error) {
	parameters := make([]ParameterValue, len(spec.Parameters))
	tokens := make([]string, len(spec.Parameters))
	for i, parameter := range spec.Parameters {
		value := parameter.Values[indexes[i]]
		token, err := FormatValue(value)
		if err != nil {
			return nil, errors.WithMessagef(err, "cannot format value of parameter %s", parameter.Name)
		}
		parameters[i] = ParameterValue{Name: parameter.Name, Tag: parameter.Tag, Value: value}
		tokens[i] = parameter.Tag + token
	}
	return &JobDefinition{
		Id:         strings.Join(tokens, "_"),
		Parameters: parameters,
	}, nil
}

// FormatValue renders a parameter value as a filesystem-safe identifier
// token. Integers keep their decimal form. Floats use shortest e-notation
// with the exponent sign folded in, "+" dropped and "-" replaced by "n":
// 1e5 becomes "1e05", 1e-3 becomes "1en03", 2.5 becomes "2.5e00". Strings
// are restricted to [A-Za-z0-9._-].
func FormatValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case int:
		return strings.ReplaceAll(strconv.Itoa(v), "-", "n"), nil
	case int64:
		return strings.ReplaceAll(strconv.FormatInt(v, 10), "-", "n"), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return formatFloat(v)
	case string:
		return sanitizeToken(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", errors.WithStack(&sweeperrors.ErrInvalidArgument{
		Name:    "values",
		Value:   value,
		Message: fmt.Sprintf("unsupported parameter value type %T", value),
	})
}

func formatFloat(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", errors.WithStack(&sweeperrors.ErrInvalidArgument{
			Name:    "values",
			Value:   v,
			Message: "not a finite number",
		})
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	s = strings.ReplaceAll(s, "+", "")
	s = strings.ReplaceAll(s, "-", "n")
	return s, nil
}

func sanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
