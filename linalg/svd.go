package linalg

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SVD holds a singular value decomposition M = U·diag(Sigma)·Vᵀ with U and V
// orthogonal and Sigma non-negative, largest first.
type SVD struct {
	U     Mat3
	Sigma r3.Vec
	V     Mat3
}

// Reconstruct returns U·diag(Sigma)·Vᵀ.
func (s SVD) Reconstruct() Mat3 {
	return s.U.Mul(Diag(s.Sigma)).Mul(s.V.T())
}

// Rotation returns the polar rotation U·Vᵀ.
func (s SVD) Rotation() Mat3 {
	return s.U.Mul(s.V.T())
}

// Stretch returns the symmetric polar factor V·diag(Sigma)·Vᵀ.
func (s SVD) Stretch() Mat3 {
	return s.V.Mul(Diag(s.Sigma)).Mul(s.V.T())
}

// Decomposer computes 3×3 SVDs with reusable gonum workspace. A Decomposer
// must not be shared between goroutines; give each worker its own.
type Decomposer struct {
	data [9]float64
	a    *mat.Dense
	svd  mat.SVD
	u, v mat.Dense
	s    [3]float64
}

// NewDecomposer returns a ready Decomposer. The zero value is also usable.
func NewDecomposer() *Decomposer {
	d := &Decomposer{}
	d.a = mat.NewDense(3, 3, d.data[:])
	return d
}

// Factorize decomposes m. ok is false when m has non-finite entries or the
// underlying LAPACK routine fails to converge.
func (d *Decomposer) Factorize(m Mat3) (SVD, bool) {
	if !m.IsFinite() {
		return SVD{}, false
	}
	if d.a == nil {
		d.a = mat.NewDense(3, 3, d.data[:])
	}
	d.data = m.Flat()
	if !d.svd.Factorize(d.a, mat.SVDFull) {
		return SVD{}, false
	}
	d.svd.Values(d.s[:])
	d.svd.UTo(&d.u)
	d.svd.VTo(&d.v)

	out := SVD{Sigma: r3.Vec{X: d.s[0], Y: d.s[1], Z: d.s[2]}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.U[i][j] = d.u.At(i, j)
			out.V[i][j] = d.v.At(i, j)
		}
	}
	return out, true
}

// Decompose is a convenience wrapper around a throwaway Decomposer.
func Decompose(m Mat3) (SVD, bool) {
	var d Decomposer
	return d.Factorize(m)
}

// PolarRotation returns the orthogonal matrix nearest to m, U·Vᵀ.
func PolarRotation(m Mat3) (Mat3, bool) {
	s, ok := Decompose(m)
	if !ok {
		return Mat3{}, false
	}
	return s.Rotation(), true
}

// PolarDecompose factors m = R·S with R orthogonal and S symmetric positive
// semi-definite.
func PolarDecompose(m Mat3) (r, s Mat3, ok bool) {
	d, ok := Decompose(m)
	if !ok {
		return Mat3{}, Mat3{}, false
	}
	return d.Rotation(), d.Stretch(), true
}

// ClampSingularValues limits every singular value to [lo, hi].
func ClampSingularValues(s SVD, lo, hi float64) SVD {
	s.Sigma = r3.Vec{
		X: clamp(s.Sigma.X, lo, hi),
		Y: clamp(s.Sigma.Y, lo, hi),
		Z: clamp(s.Sigma.Z, lo, hi),
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
