package systems

import (
	"testing"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Benchmark the CR update x += α·p with a scalar loop
func BenchmarkAxpyScalar(b *testing.B) {
	size := 3 * 64 * 64 * 64 // velocity unknowns of a 64³ grid
	x := make([]float64, size)
	p := make([]float64, size)
	for i := range p {
		p[i] = float64(i) * 0.001
	}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		for i := range x {
			x[i] += 0.5 * p[i]
		}
	}
}

// Benchmark the same update with blas64
func BenchmarkAxpyBLAS(b *testing.B) {
	size := 3 * 64 * 64 * 64
	x := make([]float64, size)
	p := make([]float64, size)
	for i := range p {
		p[i] = float64(i) * 0.001
	}
	xv := blas64.Vector{N: size, Inc: 1, Data: x}
	pv := blas64.Vector{N: size, Inc: 1, Data: p}

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		blas64.Axpy(0.5, pv, xv)
	}
}

// Benchmark residual dot products
func BenchmarkDotBLAS(b *testing.B) {
	size := 3 * 64 * 64 * 64
	r := make([]float64, size)
	for i := range r {
		r[i] = float64(i%97) * 0.01
	}
	rv := blas64.Vector{N: size, Inc: 1, Data: r}

	b.ResetTimer()
	var total float64
	for n := 0; n < b.N; n++ {
		total = blas64.Dot(rv, rv)
	}
	_ = total
}

func benchmarkStencils(b *testing.B, workers int) {
	ps := block(r3.Vec{X: 0.2, Y: 0.2, Z: 0.2}, r3.Vec{X: 0.8, Y: 0.8, Z: 0.8}, 0.02, 1e-3, r3.Vec{})
	pool := NewPool(workers)
	defer pool.Close()
	var stencils []Stencil

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		stencils = ComputeStencils(stencils, ps, 1/0.04, pool)
	}
}

func BenchmarkComputeStencilsSerial(b *testing.B)   { benchmarkStencils(b, 1) }
func BenchmarkComputeStencilsParallel(b *testing.B) { benchmarkStencils(b, 0) }
