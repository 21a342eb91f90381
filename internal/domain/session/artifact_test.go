package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifactName(t *testing.T) {
	valid := "alice_" + strings.Repeat("a1", 16) + ".txt"

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "generated_shape", input: valid},
		{name: "dotted_target", input: "john.doe_" + strings.Repeat("0", 32) + ".txt"},
		{name: "traversal", input: "../" + valid, wantErr: true},
		{name: "nested_path", input: "x/" + valid, wantErr: true},
		{name: "backslash", input: `x\` + valid, wantErr: true},
		{name: "uppercase_hex", input: "alice_" + strings.Repeat("A", 32) + ".txt", wantErr: true},
		{name: "short_suffix", input: "alice_" + strings.Repeat("a", 31) + ".txt", wantErr: true},
		{name: "wrong_extension", input: "alice_" + strings.Repeat("a", 32) + ".log", wantErr: true},
		{name: "missing_target", input: "_" + strings.Repeat("a", 32) + ".txt", wantErr: true},
		{name: "trailing_newline", input: valid + "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArtifactName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArtifactName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestNewArtifactName_RoundTripsThroughParse(t *testing.T) {
	target, err := NewTarget("alice")
	require.NoError(t, err)

	a, b := NewArtifactName(target), NewArtifactName(target)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a.String(), "alice_"))

	parsed, err := ParseArtifactName(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 32)
	assert.Equal(t, strings.ToLower(id), id)
	assert.NotEqual(t, id, NewID())
}
