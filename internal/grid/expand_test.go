package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysweep/polysweep/internal/sweeperrors"
)

func TestExpandCombinatorial(t *testing.T) {
	spec := &SweepSpec{
		Parameters: []*Parameter{
			{Name: "weight", Tag: "w", Values: []interface{}{1e4, 1e5}},
			{Name: "dhat", Tag: "d", Values: []interface{}{1e-3, 1e-4}},
		},
	}

	jobs, err := Expand(spec)
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.Id
	}
	assert.Equal(t, []string{"w1e04_d1en03", "w1e04_d1en04", "w1e05_d1en03", "w1e05_d1en04"}, ids)

	value, ok := jobs[0].Value("dhat")
	require.True(t, ok)
	assert.Equal(t, 1e-3, value)

	_, ok = jobs[0].Value("pressure")
	assert.False(t, ok)
}

func TestExpandIsDeterministic(t *testing.T) {
	spec := &SweepSpec{
		Parameters: []*Parameter{
			{Name: "weight", Tag: "w", Values: []interface{}{1e4, 1e5, 1e6}},
			{Name: "dhat", Tag: "d", Values: []interface{}{1e-3, 1e-4}},
		},
	}

	first, err := Expand(spec)
	require.NoError(t, err)
	second, err := Expand(spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandPaired(t *testing.T) {
	spec := &SweepSpec{
		Parameters: []*Parameter{
			{Name: "weight", Tag: "w", Values: []interface{}{1e4, 1e5, 1e6}, Paired: true},
			{Name: "pressure", Tag: "p", Values: []interface{}{600, 900, 1200}, Paired: true},
		},
	}

	jobs, err := Expand(spec)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "w1e04_p600", jobs[0].Id)
	assert.Equal(t, "w1e05_p900", jobs[1].Id)
	assert.Equal(t, "w1e06_p1200", jobs[2].Id)
}

func TestExpandPairedLengthMismatch(t *testing.T) {
	spec := &SweepSpec{
		Parameters: []*Parameter{
			{Name: "weight", Tag: "w", Values: []interface{}{1e4, 1e5, 1e6}, Paired: true},
			{Name: "pressure", Tag: "p", Values: []interface{}{600, 900}, Paired: true},
		},
	}

	jobs, err := Expand(spec)
	assert.Nil(t, jobs)
	var specErr *sweeperrors.ErrInvalidSpec
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "pressure", specErr.Parameter)
}

func TestExpandIdentifierCollision(t *testing.T) {
	spec := &SweepSpec{
		Parameters: []*Parameter{
			{Name: "mesh", Tag: "m", Values: []interface{}{"a/b", "a-b"}},
		},
	}

	jobs, err := Expand(spec)
	assert.Nil(t, jobs)
	var bindErr *sweeperrors.ErrBinding
	require.ErrorAs(t, err, &bindErr)
	assert.Contains(t, bindErr.Message, `"ma-b"`)
}

func TestFormatValue(t *testing.T) {
	tests := map[string]struct {
		value interface{}
		want  string
	}{
		"exponent float":          {1e5, "1e05"},
		"negative exponent float": {1e-3, "1en03"},
		"plain float":             {2.5, "2.5e00"},
		"negative float":          {-1e-3, "n1en03"},
		"int":                     {16, "16"},
		"negative int":            {-5, "n5"},
		"string":                  {"coarse", "coarse"},
		"string with slash":       {"a/b", "a-b"},
		"bool":                    {true, "true"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := FormatValue(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatValueRejectsNonFinite(t *testing.T) {
	_, err := FormatValue(math.NaN())
	assert.Error(t, err)
	_, err = FormatValue(math.Inf(1))
	assert.Error(t, err)
}
