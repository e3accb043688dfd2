package thresholds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byPath(t *testing.T, before, after string) map[string][2]string {
	t.Helper()
	changes, err := Diff(json.RawMessage(before), json.RawMessage(after))
	require.NoError(t, err)
	out := map[string][2]string{}
	for _, c := range changes {
		out[c.Path] = [2]string{string(c.Before), string(c.After)}
	}
	return out
}

func TestDiff(t *testing.T) {
	got := byPath(t,
		`{"memory":{"min_gb":8,"accepted_types":["DDR4"]},"os":{"accepted":["Windows 10"]},"gpu":{"min_gb":2}}`,
		`{"memory":{"min_gb":16,"accepted_types":["DDR4","DDR5"]},"os":{"accepted":["Windows 10"]}}`)
	require.Len(t, got, 3)

	assert.Equal(t, [2]string{"", `"DDR5"`}, got["/memory/accepted_types/1"])
	assert.JSONEq(t, `8`, got["/memory/min_gb"][0])
	assert.JSONEq(t, `16`, got["/memory/min_gb"][1])
	assert.JSONEq(t, `{"min_gb":2}`, got["/gpu"][0])
	assert.Empty(t, got["/gpu"][1])
}

func TestDiffFromNothing(t *testing.T) {
	changes, err := Diff(nil, json.RawMessage(`{"version":"1"}`))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "/version", changes[0].Path)
	assert.Nil(t, changes[0].Before)

	changes, err = Diff(json.RawMessage(`{"a":1.50}`), json.RawMessage(`{"a":1.50}`))
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, err = Diff(json.RawMessage(`{`), nil)
	assert.Error(t, err)
}
