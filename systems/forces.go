package systems

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
)

// Collider corrects a velocity in place given the position it applies at.
// It is called for every grid node after the explicit update and for every
// particle after the velocity blend, possibly from several goroutines at
// once, so implementations must not mutate shared state.
type Collider interface {
	Collide(position r3.Vec, velocity *r3.Vec)
}

// EvaluateStates computes the elastic state and unweighted force of every
// particle. On failure it returns the error of the lowest-indexed bad
// particle.
func EvaluateStates(m Material, particles []components.Particle, states []ElasticState, forces []linalg.Mat3, pool *Pool) error {
	errs := make([]error, pool.Workers())
	pool.Run(len(particles), func(start, end, worker int) {
		dec := pool.Decomposer(worker)
		for i := start; i < end; i++ {
			st, err := m.Evaluate(i, &particles[i], dec)
			if err != nil {
				errs[worker] = lowerError(errs[worker], err)
				continue
			}
			states[i] = st
			forces[i] = st.Force()
		}
	})
	return firstError(errs)
}

// AssembleForces seeds every node with gravity·mass and scatters each
// particle's force matrix through the weight gradients.
func AssembleForces(g *Grid, stencils []Stencil, forces []linalg.Mat3, gravity r3.Vec) {
	for i := range g.Nodes {
		g.Nodes[i].Force = r3.Scale(g.Nodes[i].Mass, gravity)
	}
	for i := range forces {
		f := &forces[i]
		g.Visit(&stencils[i], func(n int, _ float64, grad r3.Vec) {
			node := &g.Nodes[n]
			node.Force = r3.Add(node.Force, f.MulVec(grad))
		})
	}
}

// ExplicitUpdate sets VelocityStar = Velocity + dt·Force/Mass on every node
// with mass, then lets the collider correct it. c may be nil.
func ExplicitUpdate(g *Grid, dt float64, c Collider) {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		node.VelocityStar = node.Velocity
		if node.Mass > 0 {
			node.VelocityStar = r3.Add(node.VelocityStar, r3.Scale(dt/node.Mass, node.Force))
		}
		if c != nil {
			c.Collide(node.Position, &node.VelocityStar)
		}
	}
}

// lowerError returns whichever of two errors names the lower particle.
// A worker can process chunks out of order, so arrival order means nothing.
func lowerError(cur, err error) error {
	if cur == nil {
		return err
	}
	var a, b *DeformationError
	if errors.As(cur, &a) && errors.As(err, &b) && b.Particle < a.Particle {
		return err
	}
	return cur
}

// firstError returns the DeformationError with the lowest particle index,
// or the first non-nil error.
func firstError(errs []error) error {
	var first error
	best := -1
	for _, err := range errs {
		if err == nil {
			continue
		}
		var de *DeformationError
		if !errors.As(err, &de) {
			if first == nil {
				first = err
			}
			continue
		}
		if best < 0 || de.Particle < best {
			best = de.Particle
			first = de
		}
	}
	return first
}
