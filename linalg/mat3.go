// Package linalg provides the small dense 3×3 algebra used by the solver:
// a value-type matrix, singular value and polar decompositions, and the
// analytic differentials needed by the implicit integrator.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mat3 is a row-major 3×3 matrix. It is a value type so every particle owns
// its deformation state outright.
type Mat3 [3][3]float64

// Identity returns the 3×3 identity matrix.
func Identity() Mat3 {
	return Mat3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Diag returns a diagonal matrix with v on the diagonal.
func Diag(v r3.Vec) Mat3 {
	return Mat3{
		{v.X, 0, 0},
		{0, v.Y, 0},
		{0, 0, v.Z},
	}
}

// ScalarMat returns s·I.
func ScalarMat(s float64) Mat3 {
	return Mat3{
		{s, 0, 0},
		{0, s, 0},
		{0, 0, s},
	}
}

// Outer returns the outer product a·bᵀ.
func Outer(a, b r3.Vec) Mat3 {
	return Mat3{
		{a.X * b.X, a.X * b.Y, a.X * b.Z},
		{a.Y * b.X, a.Y * b.Y, a.Y * b.Z},
		{a.Z * b.X, a.Z * b.Y, a.Z * b.Z},
	}
}

// Ddot returns the Frobenius inner product Σ a_ij·b_ij.
func Ddot(a, b Mat3) float64 {
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s += a[i][j] * b[i][j]
		}
	}
	return s
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return r
}

// MulVec returns m·v.
func (m Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// T returns the transpose of m.
func (m Mat3) T() Mat3 {
	return Mat3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// Add returns m+n.
func (m Mat3) Add(n Mat3) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] += n[i][j]
		}
	}
	return m
}

// Sub returns m−n.
func (m Mat3) Sub(n Mat3) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] -= n[i][j]
		}
	}
	return m
}

// Scale returns f·m.
func (m Mat3) Scale(f float64) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= f
		}
	}
	return m
}

// Trace returns the sum of the diagonal entries.
func (m Mat3) Trace() float64 {
	return m[0][0] + m[1][1] + m[2][2]
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Cofactor returns the cofactor matrix of m, det(m)·m⁻ᵀ, computed without a
// division so it stays defined for singular m.
func (m Mat3) Cofactor() Mat3 {
	var c Mat3
	for i := 0; i < 3; i++ {
		i1, i2 := (i+1)%3, (i+2)%3
		for j := 0; j < 3; j++ {
			j1, j2 := (j+1)%3, (j+2)%3
			c[i][j] = m[i1][j1]*m[i2][j2] - m[i1][j2]*m[i2][j1]
		}
	}
	return c
}

// Inverse returns m⁻¹. ok is false when m is singular.
func (m Mat3) Inverse() (inv Mat3, ok bool) {
	det := m.Det()
	if det == 0 || math.IsNaN(det) {
		return Mat3{}, false
	}
	return m.Cofactor().T().Scale(1 / det), true
}

// IsFinite reports whether every entry of m is finite.
func (m Mat3) IsFinite() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// MaxAbsDiff returns max |m_ij − n_ij|.
func (m Mat3) MaxAbsDiff(n Mat3) float64 {
	var d float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d = math.Max(d, math.Abs(m[i][j]-n[i][j]))
		}
	}
	return d
}

// Flat returns the entries of m in row-major order.
func (m Mat3) Flat() [9]float64 {
	return [9]float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

// FromFlat builds a matrix from nine row-major entries.
func FromFlat(v [9]float64) Mat3 {
	return Mat3{
		{v[0], v[1], v[2]},
		{v[3], v[4], v[5]},
		{v[6], v[7], v[8]},
	}
}

func vec(x, y, z float64) r3.Vec {
	return r3.Vec{X: x, Y: y, Z: z}
}
