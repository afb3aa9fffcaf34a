package systems

import (
	"gonum.org/v1/gonum/blas/blas64"
)

// Operator is a linear map applied without materializing its matrix.
// dst and src have the same length and never alias.
type Operator interface {
	Apply(dst, src []float64)
}

// OperatorFunc adapts a function to an Operator.
type OperatorFunc func(dst, src []float64)

// Apply calls f(dst, src).
func (f OperatorFunc) Apply(dst, src []float64) { f(dst, src) }

// SolveResult reports how a linear solve ended.
type SolveResult struct {
	Iterations int
	Residual   float64 // Euclidean norm of b − A·x at exit
	Converged  bool
}

// ConjugateResidual solves A·x = b for symmetric A using the conjugate
// residual method. Hitting MaxIterations is not an error: the last iterate
// is kept and Converged is false.
type ConjugateResidual struct {
	MaxIterations int
	Tolerance     float64 // absolute, on the residual norm

	r, p, ar, ap []float64
}

func (cr *ConjugateResidual) reserve(n int) {
	if cap(cr.r) < n {
		cr.r = make([]float64, n)
		cr.p = make([]float64, n)
		cr.ar = make([]float64, n)
		cr.ap = make([]float64, n)
	}
	cr.r, cr.p, cr.ar, cr.ap = cr.r[:n], cr.p[:n], cr.ar[:n], cr.ap[:n]
}

// Solve improves x in place, starting from its current contents.
func (cr *ConjugateResidual) Solve(op Operator, x, b []float64) SolveResult {
	n := len(b)
	cr.reserve(n)

	vec := func(d []float64) blas64.Vector { return blas64.Vector{N: n, Data: d, Inc: 1} }
	xv, bv := vec(x), vec(b)
	r, p, ar, ap := vec(cr.r), vec(cr.p), vec(cr.ar), vec(cr.ap)

	// r = b − A·x
	op.Apply(cr.r, x)
	blas64.Scal(-1, r)
	blas64.Axpy(1, bv, r)

	res := SolveResult{Residual: blas64.Nrm2(r)}
	if res.Residual < cr.Tolerance {
		res.Converged = true
		return res
	}

	op.Apply(cr.ar, cr.r)
	blas64.Copy(r, p)
	blas64.Copy(ar, ap)
	rAr := blas64.Dot(r, ar)

	for res.Iterations < cr.MaxIterations {
		apap := blas64.Dot(ap, ap)
		if apap == 0 {
			break
		}
		alpha := rAr / apap
		blas64.Axpy(alpha, p, xv)
		blas64.Axpy(-alpha, ap, r)
		res.Iterations++

		res.Residual = blas64.Nrm2(r)
		if res.Residual < cr.Tolerance {
			res.Converged = true
			break
		}

		op.Apply(cr.ar, cr.r)
		rArNext := blas64.Dot(r, ar)
		if rAr == 0 {
			break
		}
		beta := rArNext / rAr
		rAr = rArNext

		// p = r + β·p, Ap = Ar + β·Ap
		blas64.Scal(beta, p)
		blas64.Axpy(1, r, p)
		blas64.Scal(beta, ap)
		blas64.Axpy(1, ar, ap)
	}
	return res
}
