package production

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/comalice/energyflow"
)

func TestDefaultVisualizer_ExportDOT(t *testing.T) {
	v := &DefaultVisualizer{}
	dot := v.ExportDOT(energyflow.StateStalling)

	assert.True(t, strings.HasPrefix(dot, "digraph Session {"))
	for _, name := range []string{"idle", "charging", "flowing", "stalling", "drained"} {
		assert.Contains(t, dot, `"`+name+`" [label="`+name+`"`)
	}
	assert.Contains(t, dot, `"idle" -> "charging" [label="prompt_started"];`)
	assert.Contains(t, dot, `"stalling" -> "flowing" [label="token"];`)
	assert.Contains(t, dot, `"stalling" -> "drained" [label="drain_timeout"];`)
	assert.Contains(t, dot, `"stalling" [label="stalling" style=filled fillcolor=lightgreen];`)
	assert.Equal(t, 1, strings.Count(dot, "fillcolor=lightgreen"))
	assert.Equal(t, len(energyflow.Transitions()), strings.Count(dot, "->"))
}

func TestDefaultVisualizer_ExportJSON(t *testing.T) {
	v := &DefaultVisualizer{}
	ev := &energyflow.TickEvent{
		Seq:             3,
		SessionState:    energyflow.StateFlowing,
		TokensProcessed: 80,
		Energy:          energyflow.EnergySnapshot{Current: 1.853},
		Interference:    &energyflow.Interference{StreamA: "a", StreamB: "b", Kind: energyflow.Constructive},
	}
	data, err := v.ExportJSON(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "flowing", decoded["session_state"])
	assert.Equal(t, 80.0, decoded["tokens_processed"])
	assert.NotContains(t, decoded, "resonance")
	assert.Equal(t, "constructive", decoded["interference"].(map[string]any)["kind"])
}

func TestDefaultVisualizer_ExportYAML(t *testing.T) {
	v := &DefaultVisualizer{}
	data, err := v.ExportYAML(&energyflow.TickEvent{Seq: 9, SessionState: energyflow.StateDrained})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, 9, decoded["seq"])
	assert.Equal(t, "drained", decoded["session_state"])
}
