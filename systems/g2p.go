package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
)

// TransferParams controls the grid-to-particle update.
type TransferParams struct {
	Dt                  float64
	FlipBlend           float64 // α: 0 is pure PIC, 1 is pure FLIP
	CriticalCompression float64
	CriticalStretch     float64
}

// UpdateParticle pulls the new grid velocities back onto one particle:
// it advances the deformation gradient, moves the part of the stretch that
// leaves [1−θc, 1+θs] into Fp, blends PIC and FLIP velocities, applies the
// collider and advances the position. index labels errors.
func UpdateParticle(g *Grid, index int, p *components.Particle, s *Stencil, tp TransferParams, c Collider, dec *linalg.Decomposer) error {
	var gradV linalg.Mat3
	var pic, dv r3.Vec
	g.Visit(s, func(n int, w float64, grad r3.Vec) {
		node := &g.Nodes[n]
		gradV = gradV.Add(linalg.Outer(node.VelocityNext, grad))
		pic = r3.Add(pic, r3.Scale(w, node.VelocityNext))
		dv = r3.Add(dv, r3.Scale(w, r3.Sub(node.VelocityNext, node.Velocity)))
	})

	step := linalg.Identity().Add(gradV.Scale(tp.Dt))
	fe := step.Mul(p.Fe)
	f := fe.Mul(p.Fp)

	if det := fe.Det(); !(det > 0) {
		return &DeformationError{Particle: index, Det: det}
	}
	svd, ok := dec.Factorize(fe)
	if !ok {
		return &DeformationError{Particle: index, Det: fe.Det()}
	}
	svd = linalg.ClampSingularValues(svd, 1-tp.CriticalCompression, 1+tp.CriticalStretch)

	inv := r3.Vec{X: 1 / svd.Sigma.X, Y: 1 / svd.Sigma.Y, Z: 1 / svd.Sigma.Z}
	p.Fe = svd.Reconstruct()
	p.Fp = svd.V.Mul(linalg.Diag(inv)).Mul(svd.U.T()).Mul(f)

	flip := r3.Add(p.Velocity, dv)
	p.VelocityStar = r3.Add(r3.Scale(1-tp.FlipBlend, pic), r3.Scale(tp.FlipBlend, flip))
	if c != nil {
		c.Collide(p.Position, &p.VelocityStar)
	}
	p.VelocityNext = p.VelocityStar
	p.Position = r3.Add(p.Position, r3.Scale(tp.Dt, p.VelocityNext))
	p.AdvanceVelocity()
	return nil
}

// UpdateParticles runs UpdateParticle over every particle. Particles are
// independent here, so the loop is spread over the pool. On failure it
// returns the error of the lowest-indexed bad particle.
func UpdateParticles(g *Grid, particles []components.Particle, stencils []Stencil, tp TransferParams, c Collider, pool *Pool) error {
	errs := make([]error, pool.Workers())
	pool.Run(len(particles), func(start, end, worker int) {
		dec := pool.Decomposer(worker)
		for i := start; i < end; i++ {
			if err := UpdateParticle(g, i, &particles[i], &stencils[i], tp, c, dec); err != nil {
				errs[worker] = lowerError(errs[worker], err)
			}
		}
	})
	return firstError(errs)
}
