// Package energy converts token batches into energy units and keeps the
// running energy state of a session.
package energy

import (
	"math"

	"github.com/comalice/energyflow"
)

// BaseEnergyPerToken is the energy of one token at unit complexity, speed 0
// and model factor 1.
const BaseEnergyPerToken = 0.01

// ReferenceSpeed is the generation speed (tokens/s) that doubles the energy of a batch.
const ReferenceSpeed = 100.0

// Calculate returns the unrounded energy of b. It has no side effects.
func Calculate(b energyflow.TokenBatch, modelFactor float64) float64 {
	complexity := energyflow.ClampComplexity(b.Complexity)
	speed := math.Max(0, b.Speed)
	speedMultiplier := 1.0 + speed/ReferenceSpeed
	return BaseEnergyPerToken * float64(b.TokenCount) * complexity * speedMultiplier * modelFactor
}

// Round3 rounds v to three decimals for display.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Calculator binds the formula to a factor table.
type Calculator struct {
	factors *FactorTable
}

// NewCalculator creates a calculator reading factors from table.
func NewCalculator(table *FactorTable) *Calculator {
	if table == nil {
		table = NewFactorTable(nil)
	}
	return &Calculator{factors: table}
}

// Energy returns the unrounded energy of b using its model's factor.
func (c *Calculator) Energy(b energyflow.TokenBatch) float64 {
	return Calculate(b, c.factors.Factor(b.ModelID))
}

// Factors returns the table the calculator reads from.
func (c *Calculator) Factors() *FactorTable {
	return c.factors
}
