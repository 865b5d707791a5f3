package energy

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultModelFactors are multipliers for the model families seen in practice.
var DefaultModelFactors = map[string]float64{
	"llama2_7b":     1.0,
	"llama2_13b":    1.3,
	"llama2_70b":    2.0,
	"codellama_7b":  1.1,
	"codellama_13b": 1.4,
	"mistral_7b":    0.9,
	"mixtral_8x7b":  1.6,
}

// FactorTable maps model ids to positive multipliers. Unknown ids resolve to 1.0.
// The table can be swapped at runtime while the tick loop reads it.
type FactorTable struct {
	mu      sync.RWMutex
	factors map[string]float64
}

// NewFactorTable creates a table from DefaultModelFactors overlaid with overrides.
func NewFactorTable(overrides map[string]float64) *FactorTable {
	factors := make(map[string]float64, len(DefaultModelFactors)+len(overrides))
	for k, v := range DefaultModelFactors {
		factors[k] = v
	}
	for k, v := range overrides {
		factors[k] = v
	}
	return &FactorTable{factors: factors}
}

// Factor returns the multiplier for model.
func (t *FactorTable) Factor(model string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if f, ok := t.factors[model]; ok {
		return f
	}
	return 1.0
}

// Known reports whether model has an explicit entry.
func (t *FactorTable) Known(model string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.factors[model]
	return ok
}

// Swap replaces the whole table. Non-positive factors are rejected.
func (t *FactorTable) Swap(factors map[string]float64) error {
	next := make(map[string]float64, len(factors))
	for k, v := range factors {
		if v <= 0 {
			return fmt.Errorf("model factor for %q must be positive, got %v", k, v)
		}
		next[k] = v
	}
	t.mu.Lock()
	t.factors = next
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the table.
func (t *FactorTable) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.factors))
	for k, v := range t.factors {
		out[k] = v
	}
	return out
}

// LoadFactorTable reads a YAML mapping of model id to factor.
func LoadFactorTable(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var factors map[string]float64
	if err := yaml.Unmarshal(data, &factors); err != nil {
		return nil, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	for k, v := range factors {
		if v <= 0 {
			return nil, fmt.Errorf("model factor for %q must be positive, got %v", k, v)
		}
	}
	return factors, nil
}
