package linalg

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomMat(rng *rand.Rand, scale float64) Mat3 {
	var m Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = scale * (2*rng.Float64() - 1)
		}
	}
	return m
}

// nearIdentity returns I plus a small random distortion, the regime elastic
// deformation gradients live in.
func nearIdentity(rng *rand.Rand, scale float64) Mat3 {
	return Identity().Add(randomMat(rng, scale))
}

func rotationAbout(axis r3.Vec, angle float64) Mat3 {
	a := r3.Unit(axis)
	k := Mat3{
		{0, -a.Z, a.Y},
		{a.Z, 0, -a.X},
		{-a.Y, a.X, 0},
	}
	return Identity().Add(k.Scale(math.Sin(angle))).Add(k.Mul(k).Scale(1 - math.Cos(angle)))
}

func assertOrthogonal(t *testing.T, m Mat3, msg string) {
	t.Helper()
	assert.InDelta(t, 0, m.T().Mul(m).MaxAbsDiff(Identity()), 1e-12, msg)
}

func TestCofactorMatchesInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 20; n++ {
		m := nearIdentity(rng, 0.3)
		inv, ok := m.Inverse()
		require.True(t, ok)
		want := inv.T().Scale(m.Det())
		assert.InDelta(t, 0, m.Cofactor().MaxAbsDiff(want), 1e-12)
		assert.InDelta(t, 0, m.Mul(inv).MaxAbsDiff(Identity()), 1e-12)
	}
}

func TestInverseSingular(t *testing.T) {
	m := Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	_, ok := m.Inverse()
	assert.False(t, ok)
}

func TestSVDReconstruct(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	cases := map[string]Mat3{
		"identity":      Identity(),
		"diagonal":      Diag(r3.Vec{X: 0.5, Y: 2, Z: 1}),
		"near identity": nearIdentity(rng, 0.05),
		"rotated stretch": rotationAbout(r3.Vec{X: 1, Y: 2, Z: 3}, 0.7).
			Mul(Diag(r3.Vec{X: 1.01, Y: 0.98, Z: 1})),
		"near singular": rotationAbout(r3.Vec{X: 0, Y: 1, Z: 1}, 1.1).
			Mul(Diag(r3.Vec{X: 1, Y: 1, Z: 1e-9})).
			Mul(rotationAbout(r3.Vec{X: 1, Y: 0, Z: 0}, 0.3)),
		"general": randomMat(rng, 1),
	}

	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			d, ok := Decompose(m)
			require.True(t, ok)

			assertOrthogonal(t, d.U, "U orthogonal")
			assertOrthogonal(t, d.V, "V orthogonal")

			assert.GreaterOrEqual(t, d.Sigma.X, d.Sigma.Y)
			assert.GreaterOrEqual(t, d.Sigma.Y, d.Sigma.Z)
			assert.GreaterOrEqual(t, d.Sigma.Z, 0.0)

			assert.InDelta(t, 0, d.Reconstruct().MaxAbsDiff(m), 1e-12)
		})
	}
}

func TestSVDRejectsNaN(t *testing.T) {
	m := Identity()
	m[1][2] = math.NaN()
	_, ok := Decompose(m)
	assert.False(t, ok)
}

func TestDecomposerReuse(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := NewDecomposer()
	var zero Decomposer
	for n := 0; n < 10; n++ {
		m := nearIdentity(rng, 0.3)
		a, ok := d.Factorize(m)
		require.True(t, ok)
		b, ok := zero.Factorize(m)
		require.True(t, ok)
		assert.InDelta(t, 0, a.Reconstruct().MaxAbsDiff(m), 1e-12)
		assert.InDelta(t, 0, b.Reconstruct().MaxAbsDiff(m), 1e-12)
	}
}

func TestPolarDecompose(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for n := 0; n < 25; n++ {
		m := rotationAbout(r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: 1}, rng.Float64()*math.Pi).
			Mul(nearIdentity(rng, 0.2))

		r, s, ok := PolarDecompose(m)
		require.True(t, ok)

		assertOrthogonal(t, r, "R orthogonal")
		assert.InDelta(t, 0, s.MaxAbsDiff(s.T()), 1e-12, "S symmetric")
		assert.InDelta(t, 0, r.Mul(s).MaxAbsDiff(m), 1e-12, "R·S = M")
		assert.InDelta(t, 1, r.Det(), 1e-12, "proper rotation for det(M) > 0")

		for k := 0; k < 5; k++ {
			x := r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
			assert.GreaterOrEqual(t, r3.Dot(x, s.MulVec(x)), -1e-12, "S positive semi-definite")
		}

		rot, ok := PolarRotation(m)
		require.True(t, ok)
		assert.InDelta(t, 0, rot.MaxAbsDiff(r), 1e-12)
	}
}

func TestPolarRotationOfRotation(t *testing.T) {
	q := rotationAbout(r3.Vec{X: 1, Y: -1, Z: 2}, 0.9)
	r, ok := PolarRotation(q)
	require.True(t, ok)
	assert.InDelta(t, 0, r.MaxAbsDiff(q), 1e-12)
}

func TestClampSingularValuesIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	lo, hi := 1-2.5e-2, 1+7.5e-3

	for n := 0; n < 20; n++ {
		m := nearIdentity(rng, 0.1)
		d, ok := Decompose(m)
		require.True(t, ok)

		once := ClampSingularValues(d, lo, hi).Reconstruct()
		d2, ok := Decompose(once)
		require.True(t, ok)
		twice := ClampSingularValues(d2, lo, hi).Reconstruct()

		assert.InDelta(t, 0, twice.MaxAbsDiff(once), 1e-12)
		for _, s := range []float64{d2.Sigma.X, d2.Sigma.Y, d2.Sigma.Z} {
			assert.GreaterOrEqual(t, s, lo-1e-12)
			assert.LessOrEqual(t, s, hi+1e-12)
		}
	}
}

func TestRotationDifferentialFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	const eps = 1e-6

	for n := 0; n < 20; n++ {
		f := rotationAbout(r3.Vec{X: rng.Float64(), Y: 1, Z: rng.Float64()}, rng.Float64()).
			Mul(nearIdentity(rng, 0.2))
		dF := randomMat(rng, 1)

		r, s, ok := PolarDecompose(f)
		require.True(t, ok)
		got, ok := RotationDifferential(r, s, dF)
		require.True(t, ok)

		rp, ok := PolarRotation(f.Add(dF.Scale(eps)))
		require.True(t, ok)
		rm, ok := PolarRotation(f.Sub(dF.Scale(eps)))
		require.True(t, ok)
		want := rp.Sub(rm).Scale(1 / (2 * eps))

		assert.InDelta(t, 0, got.MaxAbsDiff(want), 1e-6)

		// Rᵀ·δR is skew because R stays orthogonal.
		w := r.T().Mul(got)
		assert.InDelta(t, 0, w.Add(w.T()).MaxAbsDiff(Mat3{}), 1e-10)
	}
}

func TestRotationDifferentialAtIdentity(t *testing.T) {
	// At F = I the rotation differential is the skew part of δF.
	dF := Mat3{{0.1, 0.4, -0.2}, {0.0, 0.3, 0.5}, {0.6, -0.1, 0.2}}
	got, ok := RotationDifferential(Identity(), Identity(), dF)
	require.True(t, ok)
	want := dF.Sub(dF.T()).Scale(0.5)
	assert.InDelta(t, 0, got.MaxAbsDiff(want), 1e-14)
}

func TestCofactorDifferentialFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const eps = 1e-5

	for n := 0; n < 20; n++ {
		f := randomMat(rng, 1)
		dF := randomMat(rng, 1)

		got := CofactorDifferential(f, dF)
		want := f.Add(dF.Scale(eps)).Cofactor().Sub(f.Sub(dF.Scale(eps)).Cofactor()).Scale(1 / (2 * eps))
		assert.InDelta(t, 0, got.MaxAbsDiff(want), 1e-9)
	}
}

func TestDeterminantDifferentialFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	const eps = 1e-5

	for n := 0; n < 20; n++ {
		f := nearIdentity(rng, 0.3)
		dF := randomMat(rng, 1)

		got := DeterminantDifferential(f.Cofactor(), dF)
		want := (f.Add(dF.Scale(eps)).Det() - f.Sub(dF.Scale(eps)).Det()) / (2 * eps)
		assert.InDelta(t, want, got, 1e-8)
	}
}

func TestFlatRoundTrip(t *testing.T) {
	m := Mat3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	assert.Equal(t, m, FromFlat(m.Flat()))
	assert.Equal(t, 15.0, m.Trace())
}
