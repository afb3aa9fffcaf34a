package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// StencilWidth is the number of lattice nodes per axis a particle touches.
// The cubic B-spline has a support radius of two cells, so the nodes
// floor(x/h)-1 .. floor(x/h)+2 cover it.
const StencilWidth = 4

// Bspline evaluates the 1D cubic B-spline N(x). It is C² and vanishes for
// |x| >= 2.
func Bspline(x float64) float64 {
	ax := math.Abs(x)
	switch {
	case ax < 1:
		return 0.5*ax*ax*ax - ax*ax + 2.0/3.0
	case ax < 2:
		return -ax*ax*ax/6 + ax*ax - 2*ax + 4.0/3.0
	}
	return 0
}

// BsplineSlope evaluates N'(x).
func BsplineSlope(x float64) float64 {
	ax := math.Abs(x)
	switch {
	case ax < 1:
		return 1.5*x*ax - 2*x
	case ax < 2:
		return -0.5*x*ax + 2*x - 2*x/ax
	}
	return 0
}

// Weight returns the interpolation weight between a grid node and a
// particle, N(dx)·N(dy)·N(dz) with d = (particle − node)/h.
func Weight(node, particle r3.Vec, invH float64) float64 {
	d := r3.Scale(invH, r3.Sub(particle, node))
	return Bspline(d.X) * Bspline(d.Y) * Bspline(d.Z)
}

// WeightGradient returns the gradient of Weight with respect to the
// particle position.
func WeightGradient(node, particle r3.Vec, invH float64) r3.Vec {
	d := r3.Scale(invH, r3.Sub(particle, node))
	nx, ny, nz := Bspline(d.X), Bspline(d.Y), Bspline(d.Z)
	return r3.Vec{
		X: invH * BsplineSlope(d.X) * ny * nz,
		Y: invH * nx * BsplineSlope(d.Y) * nz,
		Z: invH * nx * ny * BsplineSlope(d.Z),
	}
}

// Stencil caches the separable kernel factors of one particle. Weights and
// gradients for the 4×4×4 block of nodes starting at Base are products of
// the per-axis factors.
type Stencil struct {
	Base  [3]int                    // lattice index of the first node on each axis
	Value [3][StencilWidth]float64 // N per axis
	Slope [3][StencilWidth]float64 // N'/h per axis
}

// NewStencil computes the stencil of a particle at pos.
func NewStencil(pos r3.Vec, invH float64) Stencil {
	var s Stencil
	coords := [3]float64{pos.X * invH, pos.Y * invH, pos.Z * invH}
	for axis, x := range coords {
		base := int(math.Floor(x)) - 1
		s.Base[axis] = base
		for a := 0; a < StencilWidth; a++ {
			d := x - float64(base+a)
			s.Value[axis][a] = Bspline(d)
			s.Slope[axis][a] = invH * BsplineSlope(d)
		}
	}
	return s
}

// Node returns the lattice index of stencil entry (a, b, c).
func (s *Stencil) Node(a, b, c int) (x, y, z int) {
	return s.Base[0] + a, s.Base[1] + b, s.Base[2] + c
}

// Weight returns the weight of stencil entry (a, b, c).
func (s *Stencil) Weight(a, b, c int) float64 {
	return s.Value[0][a] * s.Value[1][b] * s.Value[2][c]
}

// Gradient returns the weight gradient of stencil entry (a, b, c).
func (s *Stencil) Gradient(a, b, c int) r3.Vec {
	return r3.Vec{
		X: s.Slope[0][a] * s.Value[1][b] * s.Value[2][c],
		Y: s.Value[0][a] * s.Slope[1][b] * s.Value[2][c],
		Z: s.Value[0][a] * s.Value[1][b] * s.Slope[2][c],
	}
}
