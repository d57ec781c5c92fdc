package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobID(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		kind       JobIDKind
		base       string
		actionable bool
	}{
		{
			name:       "plain numeric id",
			raw:        "12345",
			kind:       JobIDPlain,
			base:       "12345",
			actionable: true,
		},
		{
			name:       "array task",
			raw:        "12345_7",
			kind:       JobIDArrayTask,
			base:       "12345_7",
			actionable: true,
		},
		{
			name:       "array summary with range",
			raw:        "500[0-3]",
			kind:       JobIDArraySummary,
			base:       "500",
			actionable: false,
		},
		{
			name:       "array summary with list",
			raw:        "500[1,3,5]",
			kind:       JobIDArraySummary,
			base:       "500",
			actionable: false,
		},
		{
			name:       "het component",
			raw:        "12345+1",
			kind:       JobIDHetComponent,
			base:       "12345",
			actionable: true,
		},
		{
			name:       "whitespace is trimmed",
			raw:        "  12345 ",
			kind:       JobIDPlain,
			base:       "12345",
			actionable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseJobID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, id.Kind)
			assert.Equal(t, tt.base, id.Base)
			assert.Equal(t, tt.actionable, id.Actionable())
		})
	}
}

func TestParseJobIDMalformed(t *testing.T) {
	for _, raw := range []string{"", "abc", "12a45", "12345_", "_7", "12345+", "+1", "500[", "500[0-3", "12345 67"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseJobID(raw)
			require.Error(t, err)
			assert.ErrorAs(t, err, new(*ErrMalformedJobID))
		})
	}
}
