package energy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/energyflow"
)

func tokens(model string, count int, complexity, speed float64) energyflow.TokenBatch {
	return energyflow.NewTokenBatch(time.Now(), "s", model, count, complexity, speed, nil)
}

func TestCalculateFormula(t *testing.T) {
	tests := []struct {
		name   string
		batch  energyflow.TokenBatch
		factor float64
		want   float64
	}{
		{name: "reference", batch: tokens("m", 100, 1, 0), factor: 1, want: 1.0},
		{name: "speed doubles at 100 tok/s", batch: tokens("m", 100, 1, 100), factor: 1, want: 2.0},
		{name: "llama2_7b stream", batch: tokens("llama2_7b", 50, 1.2, 45), factor: 1.0, want: 0.87},
		{name: "codellama_13b stream", batch: tokens("codellama_13b", 30, 1.8, 30), factor: 1.4, want: 0.9828},
		{name: "complexity clamped high", batch: energyflow.TokenBatch{TokenCount: 10, Complexity: 50}, factor: 1, want: 1.0},
		{name: "complexity clamped low", batch: energyflow.TokenBatch{TokenCount: 100, Complexity: 0}, factor: 1, want: 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Calculate(tt.batch, tt.factor), 1e-9)
		})
	}
}

func TestCalculateDeterministic(t *testing.T) {
	b := tokens("llama2_13b", 10, 1.5, 45)
	calc := NewCalculator(nil)

	first := Round3(calc.Energy(b))
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Round3(calc.Energy(b)))
	}
	// 0.01 * 10 * 1.5 * 1.45 * 1.3 = 0.28275; rounding may land on either side.
	assert.InDelta(t, 0.283, first, 0.0011)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.853, Round3(1.8528))
	assert.Equal(t, 0.87, Round3(0.87))
	assert.Equal(t, 0.0, Round3(0.0004))
}

func TestFactorTable(t *testing.T) {
	table := NewFactorTable(map[string]float64{"custom": 1.7, "llama2_7b": 1.05})

	assert.Equal(t, 1.7, table.Factor("custom"))
	assert.Equal(t, 1.05, table.Factor("llama2_7b"))
	assert.Equal(t, 1.3, table.Factor("llama2_13b"))
	assert.Equal(t, 1.0, table.Factor("nobody"))
	assert.False(t, table.Known("nobody"))

	require.NoError(t, table.Swap(map[string]float64{"only": 2}))
	assert.Equal(t, 2.0, table.Factor("only"))
	assert.Equal(t, 1.0, table.Factor("llama2_13b"))

	require.Error(t, table.Swap(map[string]float64{"bad": 0}))
	assert.Equal(t, 2.0, table.Factor("only"), "failed swap keeps the old table")
}

func TestLoadFactorTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "factors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llama2_7b: 1.1\nqwen_32b: 1.8\n"), 0o644))

	factors, err := LoadFactorTable(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"llama2_7b": 1.1, "qwen_32b": 1.8}, factors)

	require.NoError(t, os.WriteFile(path, []byte("broken: -1\n"), 0o644))
	_, err = LoadFactorTable(path)
	require.Error(t, err)

	_, err = LoadFactorTable(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
