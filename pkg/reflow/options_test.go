package reflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveWriteMode(t *testing.T) {
	tests := []struct {
		name                   string
		inPlace, check, stdout bool
		want                   WriteMode
		wantErr                bool
	}{
		{"none set", false, false, false, WriteModeDerived, false},
		{"inplace", true, false, false, WriteModeInPlace, false},
		{"check", false, true, false, WriteModeCheck, false},
		{"stdout", false, false, true, WriteModeStdout, false},
		{"inplace and check", true, true, false, "", true},
		{"all three", true, true, true, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeriveWriteMode(tc.inPlace, tc.check, tc.stdout)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrConfigValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWriteMode_Writes(t *testing.T) {
	assert.True(t, WriteModeDerived.writes())
	assert.True(t, WriteModeInPlace.writes())
	assert.False(t, WriteModeCheck.writes())
	assert.False(t, WriteModeStdout.writes())
}

func TestOptions_ReflowConfig(t *testing.T) {
	o := Options{
		DeleteNewline:              true,
		ExtraBlockCommands:         []string{"todo"},
		ExtraPreservedEnvironments: []string{"algorithmic"},
	}
	cfg := o.ReflowConfig()
	assert.True(t, cfg.DeleteNewline)
	assert.Equal(t, []string{"todo"}, cfg.ExtraBlockCommands)
	assert.Equal(t, []string{"algorithmic"}, cfg.ExtraPreservedEnvironments)
}
