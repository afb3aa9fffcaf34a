// Package components defines the per-node and per-particle state of the
// material point solver.
package components

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/linalg"
)

// GridNode is one vertex of the background lattice.
// Nodes are owned by the grid and rebuilt whenever spacing or extent change.
type GridNode struct {
	Position r3.Vec // Index * h
	Index    [3]int // lattice coordinates

	Mass         float64
	Velocity     r3.Vec // velocity at the current tick
	VelocityNext r3.Vec // velocity at the next tick
	VelocityStar r3.Vec // after explicit forces, before the implicit solve
	Force        r3.Vec // transient accumulator

	Density0 float64 // reference density, captured at the first tick
}

// Particle is a material point carrying mass and deformation state.
type Particle struct {
	Position     r3.Vec
	Velocity     r3.Vec // velocity at the current tick
	VelocityNext r3.Vec // velocity at the next tick
	VelocityStar r3.Vec // blended PIC/FLIP velocity before collisions

	Mass    float64
	Volume0 float64 // reference volume, computed once at the first tick

	Fe linalg.Mat3 // elastic deformation gradient
	Fp linalg.Mat3 // plastic deformation gradient
}

// NewParticle creates a particle in its undeformed reference state.
func NewParticle(position, velocity r3.Vec, mass float64) Particle {
	return Particle{
		Position: position,
		Velocity: velocity,
		Mass:     mass,
		Fe:       linalg.Identity(),
		Fp:       linalg.Identity(),
	}
}

// Deformation returns the total deformation gradient F = Fe·Fp.
func (p *Particle) Deformation() linalg.Mat3 {
	return p.Fe.Mul(p.Fp)
}

// AdvanceVelocity makes the next-tick velocity current.
func (p *Particle) AdvanceVelocity() {
	p.Velocity, p.VelocityNext = p.VelocityNext, p.Velocity
}
