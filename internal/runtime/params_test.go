package runtime

import (
	"errors"
	"math"
	"testing"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParams(t *testing.T) {
	type target struct {
		Distance float64 `param:"distance"`
		ObjectID string  `param:"object-id"`
	}

	tests := []struct {
		name    string
		params  map[string]any
		want    target
		errCode string
	}{
		{
			name:   "Numbers",
			params: map[string]any{"distance": 12, "object-id": 7},
			want:   target{Distance: 12, ObjectID: "7"},
		},
		{
			name:   "Strings",
			params: map[string]any{"distance": "12.5", "object-id": "obj7"},
			want:   target{Distance: 12.5, ObjectID: "obj7"},
		},
		{
			name:    "Missing",
			params:  map[string]any{"object-id": "obj7"},
			errCode: domain.CodeMissingParameter,
		},
		{
			name:    "Empty",
			params:  map[string]any{"distance": "", "object-id": "obj7"},
			errCode: domain.CodeMissingParameter,
		},
		{
			name:    "NotANumber",
			params:  map[string]any{"distance": "near", "object-id": "obj7"},
			errCode: domain.CodeInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got target
			err := decodeParams(tt.params, &got, "distance", "object-id")
			if tt.errCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.errCode, verr.Code)
		})
	}
}

func TestRangeChecks(t *testing.T) {
	assert.NoError(t, within("h", 0, 0, 1))
	assert.NoError(t, within("h", 1, 0, 1))
	assert.Error(t, within("h", 1.01, 0, 1))
	assert.Error(t, within("h", math.NaN(), 0, 1))
	assert.Error(t, positive("s", 0))
	assert.Error(t, finite("d", math.Inf(1)))
}
