package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nflow: [{invoke: cash.open, args: {}}]\nassertions: [{type: trace_count, action: cash.open, count: 1}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nflow: [{invoke: cash.open, args: {}}]\nassertions: [{type: trace_count, action: cash.open, count: 1}]",
			wantErr: "description is required",
		},
		{
			name:    "empty flow",
			yaml:    "name: n\ndescription: d\nassertions: [{type: trace_count, action: cash.open, count: 1}]",
			wantErr: "flow list is required",
		},
		{
			name:    "unknown action",
			yaml:    "name: n\ndescription: d\nflow: [{invoke: cash.explode, args: {}}]\nassertions: [{type: trace_count, action: cash.open, count: 1}]",
			wantErr: `unknown action "cash.explode"`,
		},
		{
			name:    "expect without case",
			yaml:    "name: n\ndescription: d\nflow: [{invoke: cash.open, args: {}, expect: {result: {a: 1}}}]\nassertions: [{type: trace_count, action: cash.open, count: 1}]",
			wantErr: "expect: case is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nflow: [{invoke: cash.open, args: {}}]\nassertions: [{type: vibes}]",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "final_state without expect",
			yaml:    "name: n\ndescription: d\nflow: [{invoke: cash.open, args: {}}]\nassertions: [{type: final_state, table: estoque}]",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nflow: [{invoke: cash.open, args: {}}]\nassertion: []",
			wantErr: "failed to parse YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from_file
description: "loads from disk"
actor: op-1
flow:
  - invoke: cash.open
    args: { initial_c: 10 }
assertions:
  - type: final_count
    table: cashSessions
    count: 1
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", s.Name)
	assert.Equal(t, "op-1", s.Actor)
	assert.Equal(t, 10, s.Flow[0].Args["initial_c"])

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}
