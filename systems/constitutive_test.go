package systems

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
)

func snowMaterial() Material {
	return NewMaterial(1.4e5, 0.2, 10, 2.5e-2, 7.5e-3)
}

func randomDistortion(rng *rand.Rand, scale float64) linalg.Mat3 {
	var m linalg.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = scale * (2*rng.Float64() - 1)
		}
	}
	return m
}

func rotation(axis r3.Vec, angle float64) linalg.Mat3 {
	a := r3.Unit(axis)
	k := linalg.Mat3{
		{0, -a.Z, a.Y},
		{a.Z, 0, -a.X},
		{-a.Y, a.X, 0},
	}
	return linalg.Identity().Add(k.Scale(math.Sin(angle))).Add(k.Mul(k).Scale(1 - math.Cos(angle)))
}

func TestNewMaterialLame(t *testing.T) {
	m := NewMaterial(1.4e5, 0.2, 10, 0.025, 0.0075)
	assert.InDelta(t, 1.4e5/2.4, m.Mu0, 1e-9)
	assert.InDelta(t, 1.4e5*0.2/(1.2*0.6), m.Lambda0, 1e-9)
}

func TestForceVanishesAtRest(t *testing.T) {
	m := snowMaterial()
	cases := map[string]linalg.Mat3{
		"identity": linalg.Identity(),
		"rotation": rotation(r3.Vec{X: 1, Y: 2, Z: -1}, 0.8),
	}
	for name, fe := range cases {
		t.Run(name, func(t *testing.T) {
			p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
			p.Fe = fe
			p.Volume0 = 0.01

			st, err := m.Evaluate(0, &p, linalg.NewDecomposer())
			require.NoError(t, err)
			assert.InDelta(t, 0, st.Force().MaxAbsDiff(linalg.Mat3{}), 1e-9)
		})
	}
}

func TestEvaluateHardening(t *testing.T) {
	m := snowMaterial()
	p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
	p.Fp = linalg.Diag(r3.Vec{X: 0.9, Y: 1, Z: 1})

	st, err := m.Evaluate(0, &p, linalg.NewDecomposer())
	require.NoError(t, err)
	assert.InDelta(t, 0.9, st.Jp, 1e-15)
	assert.InDelta(t, m.Mu0*math.E, st.Mu, 1e-6)
	assert.InDelta(t, m.Lambda0*math.E, st.Lambda, 1e-6)
}

func TestEvaluateRejectsDegenerate(t *testing.T) {
	m := snowMaterial()
	cases := map[string]linalg.Mat3{
		"inverted":  linalg.Diag(r3.Vec{X: 1, Y: 1, Z: -1}),
		"collapsed": linalg.Diag(r3.Vec{X: 1, Y: 0, Z: 1}),
		"nan":       {{math.NaN(), 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	for name, fe := range cases {
		t.Run(name, func(t *testing.T) {
			p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
			p.Fe = fe
			_, err := m.Evaluate(7, &p, linalg.NewDecomposer())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDegenerateDeformation))

			var de *DeformationError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, 7, de.Particle)
		})
	}
}

// stressTimes evaluates −V0·[2μ(F−R(F)) + λ(J−1)·cof(F)]·Gᵀ, the force
// matrix as a function of F with the trailing factor frozen at G.
func stressTimes(t *testing.T, st *ElasticState, f, g linalg.Mat3) linalg.Mat3 {
	t.Helper()
	r, ok := linalg.PolarRotation(f)
	require.True(t, ok)
	shear := f.Sub(r).Scale(2 * st.Mu)
	volume := f.Cofactor().Scale(st.Lambda * (f.Det() - 1))
	return shear.Add(volume).Mul(g.T()).Scale(-st.Volume0)
}

func TestForceMatchesStressForm(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	m := snowMaterial()
	for n := 0; n < 10; n++ {
		p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
		p.Fe = rotation(r3.Vec{X: rng.Float64(), Y: 1, Z: rng.Float64()}, rng.Float64()).
			Mul(linalg.Identity().Add(randomDistortion(rng, 0.02)))
		p.Volume0 = 1e-3

		st, err := m.Evaluate(n, &p, linalg.NewDecomposer())
		require.NoError(t, err)
		assert.InDelta(t, 0, st.Force().MaxAbsDiff(stressTimes(t, &st, p.Fe, p.Fe)), 1e-8)
	}
}

func TestForceDifferentialFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	m := snowMaterial()
	const eps = 1e-6

	for n := 0; n < 20; n++ {
		p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
		p.Fe = rotation(r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: 1}, 2*rng.Float64()).
			Mul(linalg.Identity().Add(randomDistortion(rng, 0.05)))
		p.Fp = linalg.Identity().Add(randomDistortion(rng, 0.01))
		p.Volume0 = 1e-3

		st, err := m.Evaluate(n, &p, linalg.NewDecomposer())
		require.NoError(t, err)

		dF := randomDistortion(rng, 1)
		got := st.ForceDifferential(dF)

		plus := stressTimes(t, &st, p.Fe.Add(dF.Scale(eps)), p.Fe)
		minus := stressTimes(t, &st, p.Fe.Sub(dF.Scale(eps)), p.Fe)
		want := plus.Sub(minus).Scale(1 / (2 * eps))

		scale := math.Max(1, want.MaxAbsDiff(linalg.Mat3{}))
		assert.Less(t, got.MaxAbsDiff(want)/scale, 1e-6)
	}
}

func TestForceDifferentialLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	m := snowMaterial()
	p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
	p.Fe = linalg.Identity().Add(randomDistortion(rng, 0.05))
	p.Volume0 = 1e-3

	st, err := m.Evaluate(0, &p, linalg.NewDecomposer())
	require.NoError(t, err)

	a, b := randomDistortion(rng, 1), randomDistortion(rng, 1)
	lhs := st.ForceDifferential(a.Add(b.Scale(2)))
	rhs := st.ForceDifferential(a).Add(st.ForceDifferential(b).Scale(2))
	assert.InDelta(t, 0, lhs.MaxAbsDiff(rhs), 1e-8)
}

// ForceDifferential against values worked out by hand for states where the
// polar factors are known exactly.
func TestForceDifferentialHandComputed(t *testing.T) {
	m := Material{Mu0: 1, Lambda0: 2}
	const eps = 1e-3

	tests := []struct {
		name string
		fe   linalg.Mat3
		dF   linalg.Mat3
		want linalg.Mat3
	}{
		{
			// R = S = I: δR = skew(δF)/2, so only sym(δF) survives.
			name: "shear at rest",
			fe:   linalg.Identity(),
			dF:   linalg.Mat3{{0, eps, 0}},
			want: linalg.Mat3{{0, -0.5 * eps, 0}, {-0.5 * eps, 0, 0}},
		},
		{
			// Fe = Rz(90°), δF = Fe·ε·E01: δR = Fe·W with W = ε(E01−E10)/2,
			// giving +V0·μ·ε on both off-diagonal entries.
			name: "shear of a rotated state",
			fe:   linalg.Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
			dF:   linalg.Mat3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}.Mul(linalg.Mat3{{0, eps, 0}}),
			want: linalg.Mat3{{0, 0.5 * eps, 0}, {0.5 * eps, 0, 0}},
		},
		{
			// Fe = diag(2,1,1), δF = ε·E00: δR = 0, δJ = ε, cof = diag(1,2,2)
			// and δcof = diag(0,ε,ε) from the entries of Fe.
			name: "volume change of a stretched state",
			fe:   linalg.Diag(r3.Vec{X: 2, Y: 1, Z: 1}),
			dF:   linalg.Mat3{{eps, 0, 0}},
			want: linalg.Diag(r3.Vec{X: -4 * eps, Y: -3 * eps, Z: -3 * eps}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := components.NewParticle(r3.Vec{}, r3.Vec{}, 1)
			p.Fe = tt.fe
			p.Volume0 = 0.5

			st, err := m.Evaluate(0, &p, linalg.NewDecomposer())
			require.NoError(t, err)
			got := st.ForceDifferential(tt.dF)
			assert.InDelta(t, 0, got.MaxAbsDiff(tt.want), 1e-12, "got %v", got)
		})
	}
}
