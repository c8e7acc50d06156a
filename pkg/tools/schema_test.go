package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaToMapNil(t *testing.T) {
	t.Parallel()

	m, err := SchemaToMap(nil)
	require.NoError(t, err)

	assert.Equal(t, "object", m["type"])
	assert.Equal(t, map[string]any{}, m["properties"])
	assert.NotContains(t, m, "required")
}

func TestSchemaToMapDefaultsPropertyTypes(t *testing.T) {
	t.Parallel()

	m, err := SchemaToMap(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"outer": map[string]any{
				"properties": map[string]any{
					"inner": map[string]any{},
				},
			},
			"list": map[string]any{
				"type":  "array",
				"items": map[string]any{},
			},
		},
	})
	require.NoError(t, err)

	props := m["properties"].(map[string]any)
	outer := props["outer"].(map[string]any)
	assert.Equal(t, "object", outer["type"])

	inner := outer["properties"].(map[string]any)["inner"].(map[string]any)
	assert.Equal(t, "object", inner["type"])

	items := props["list"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, "object", items["type"])
}

func TestMustSchemaMap(t *testing.T) {
	t.Parallel()

	type args struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}

	m := MustSchemaMap[args]()

	assert.Equal(t, "object", m["type"])
	props := m["properties"].(map[string]any)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
}

func TestCallStatusTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, CallStatusPending.CanTransition(CallStatusRunning))
	assert.True(t, CallStatusRunning.CanTransition(CallStatusCompleted))
	assert.True(t, CallStatusRunning.CanTransition(CallStatusError))

	assert.False(t, CallStatusPending.CanTransition(CallStatusCompleted))
	assert.False(t, CallStatusCompleted.CanTransition(CallStatusRunning))
	assert.False(t, CallStatusError.CanTransition(CallStatusPending))
}
