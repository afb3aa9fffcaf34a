package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/linalg"
)

// ImplicitOperator applies A(v) = v − β·Δt·δf(v)/m to a grid velocity
// field packed as xyz triples, where δf is the linearized grid force. Nodes
// without mass map to themselves.
//
// The elastic states are the ones evaluated at the start of the tick and
// stay frozen across applications.
type ImplicitOperator struct {
	Grid     *Grid
	Stencils []Stencil
	States   []ElasticState
	Dt       float64
	Beta     float64
	Pool     *Pool

	dForces []linalg.Mat3
	df      []r3.Vec
	b, x    []float64
}

// Solve runs cr on A·v_next = v_star, starting from v_star, and stores the
// result in every node's VelocityNext.
func (op *ImplicitOperator) Solve(cr *ConjugateResidual) SolveResult {
	n := 3 * op.Grid.NodeCount()
	if cap(op.b) < n {
		op.b = make([]float64, n)
		op.x = make([]float64, n)
	}
	op.b, op.x = op.b[:n], op.x[:n]

	op.Grid.PackVelocityStar(op.b)
	copy(op.x, op.b)
	res := cr.Solve(op, op.x, op.b)
	op.Grid.UnpackVelocityNext(op.x)
	return res
}

// Apply evaluates dst = A(src).
func (op *ImplicitOperator) Apply(dst, src []float64) {
	g := op.Grid
	np := len(op.States)
	if cap(op.dForces) < np {
		op.dForces = make([]linalg.Mat3, np)
	}
	op.dForces = op.dForces[:np]
	if cap(op.df) < len(g.Nodes) {
		op.df = make([]r3.Vec, len(g.Nodes))
	}
	op.df = op.df[:len(g.Nodes)]

	op.Pool.Run(np, func(start, end, _ int) {
		for i := start; i < end; i++ {
			var gradV linalg.Mat3
			g.Visit(&op.Stencils[i], func(n int, _ float64, grad r3.Vec) {
				v := r3.Vec{X: src[3*n], Y: src[3*n+1], Z: src[3*n+2]}
				gradV = gradV.Add(linalg.Outer(v, grad))
			})
			st := &op.States[i]
			dFe := gradV.Mul(st.Fe).Scale(op.Dt)
			op.dForces[i] = st.ForceDifferential(dFe)
		}
	})

	for i := range op.df {
		op.df[i] = r3.Vec{}
	}
	for i := range op.dForces {
		f := &op.dForces[i]
		g.Visit(&op.Stencils[i], func(n int, _ float64, grad r3.Vec) {
			op.df[n] = r3.Add(op.df[n], f.MulVec(grad))
		})
	}

	for n := range g.Nodes {
		dst[3*n], dst[3*n+1], dst[3*n+2] = src[3*n], src[3*n+1], src[3*n+2]
		if m := g.Nodes[n].Mass; m > 0 {
			s := op.Beta * op.Dt / m
			dst[3*n] -= s * op.df[n].X
			dst[3*n+1] -= s * op.df[n].Y
			dst[3*n+2] -= s * op.df[n].Z
		}
	}
}
