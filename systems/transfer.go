package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
)

// ComputeStencils fills one stencil per particle, reusing dst's storage.
func ComputeStencils(dst []Stencil, particles []components.Particle, invH float64, pool *Pool) []Stencil {
	if cap(dst) < len(particles) {
		dst = make([]Stencil, len(particles))
	}
	dst = dst[:len(particles)]

	pool.Run(len(particles), func(start, end, _ int) {
		for i := start; i < end; i++ {
			dst[i] = NewStencil(particles[i].Position, invH)
		}
	})
	return dst
}

// Rasterize transfers particle mass and momentum to the grid and normalizes
// node momentum into velocity. Nodes without mass get zero velocity.
// Returns the total mass deposited.
//
// The scatter runs in particle order on the calling goroutine so the result
// does not depend on the worker count.
func Rasterize(g *Grid, particles []components.Particle, stencils []Stencil) float64 {
	g.Reset()

	var total float64
	for i := range particles {
		p := &particles[i]
		g.Visit(&stencils[i], func(n int, w float64, _ r3.Vec) {
			m := p.Mass * w
			node := &g.Nodes[n]
			node.Mass += m
			node.Velocity = r3.Add(node.Velocity, r3.Scale(m, p.Velocity))
			total += m
		})
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.Mass > 0 {
			node.Velocity = r3.Scale(1/node.Mass, node.Velocity)
		} else {
			node.Velocity = r3.Vec{}
		}
	}
	return total
}

// InitVolumes captures reference densities on the grid and derives every
// particle's reference volume from them. It must run once, right after the
// first rasterization. Particles that see zero density get zero volume.
func InitVolumes(g *Grid, particles []components.Particle, stencils []Stencil) (avgNodeDensity, avgParticleDensity float64) {
	cell := g.H * g.H * g.H

	var sum float64
	for i := range g.Nodes {
		node := &g.Nodes[i]
		node.Density0 = node.Mass / cell
		sum += node.Density0
	}
	if len(g.Nodes) > 0 {
		avgNodeDensity = sum / float64(len(g.Nodes))
	}

	sum = 0
	for i := range particles {
		p := &particles[i]
		var density float64
		g.Visit(&stencils[i], func(n int, w float64, _ r3.Vec) {
			density += g.Nodes[n].Density0 * w
		})
		if density > 0 {
			p.Volume0 = p.Mass / density
		} else {
			p.Volume0 = 0
		}
		sum += density
	}
	if len(particles) > 0 {
		avgParticleDensity = sum / float64(len(particles))
	}
	return avgNodeDensity, avgParticleDensity
}
