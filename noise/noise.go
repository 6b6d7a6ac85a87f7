// Package noise simulates sensor error on true cursor coordinates.
package noise

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Model perturbs a true scalar position into a simulated sensor reading.
type Model interface {
	Perturb(value, amount float64) float64
}

// Uniform adds a bounded, symmetric uniform offset of total width amount
// pixels, rounded to a whole pixel. Only the offset is rounded, so an amount
// of zero returns value unchanged.
type Uniform struct {
	src rand.Source
}

// NewUniform returns a Uniform model drawing from src. A nil src uses the
// global math/rand/v2 generator.
func NewUniform(src rand.Source) *Uniform {
	return &Uniform{src: src}
}

// NewSeeded returns a Uniform model with its own PCG source.
func NewSeeded(seed uint64) *Uniform {
	return NewUniform(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (u *Uniform) Perturb(value, amount float64) float64 {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return value
	}
	half := amount / 2
	dist := distuv.Uniform{Min: -half, Max: half, Src: u.src}
	return value + math.Round(dist.Rand())
}

// None never perturbs.
type None struct{}

func (None) Perturb(value, _ float64) float64 { return value }
