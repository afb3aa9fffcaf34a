package systems

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
)

// ErrDegenerateDeformation reports an elastic deformation gradient with
// det(Fe) <= 0 or non-finite entries. The simulation has blown up.
var ErrDegenerateDeformation = errors.New("degenerate elastic deformation")

// DeformationError identifies the particle whose deformation degenerated.
type DeformationError struct {
	Particle int
	Det      float64
}

func (e *DeformationError) Error() string {
	return fmt.Sprintf("particle %d: det(Fe)=%g: %v", e.Particle, e.Det, ErrDegenerateDeformation)
}

func (e *DeformationError) Unwrap() error {
	return ErrDegenerateDeformation
}

// Material holds the fixed corotated snow model with hardening.
type Material struct {
	Mu0                 float64 // shear modulus at rest
	Lambda0             float64 // first Lamé parameter at rest
	Hardening           float64 // ξ in exp(ξ(1−Jp))
	CriticalCompression float64 // θc
	CriticalStretch     float64 // θs
}

// NewMaterial derives the Lamé parameters from Young's modulus and
// Poisson's ratio.
func NewMaterial(youngs, poisson, hardening, compression, stretch float64) Material {
	return Material{
		Mu0:                 youngs / (2 * (1 + poisson)),
		Lambda0:             youngs * poisson / ((1 + poisson) * (1 - 2*poisson)),
		Hardening:           hardening,
		CriticalCompression: compression,
		CriticalStretch:     stretch,
	}
}

// ElasticState is the per-particle constitutive state frozen at the start
// of a tick. The force and its linearization both read from it.
type ElasticState struct {
	Fe  linalg.Mat3
	R   linalg.Mat3 // polar rotation of Fe
	S   linalg.Mat3 // symmetric polar factor of Fe
	Cof linalg.Mat3 // cofactor of Fe

	Je, Jp     float64
	Mu, Lambda float64 // hardened Lamé parameters
	Volume0    float64
}

// Evaluate computes the elastic state of particle p. The index is only used
// to label errors.
func (m Material) Evaluate(index int, p *components.Particle, dec *linalg.Decomposer) (ElasticState, error) {
	je := p.Fe.Det()
	if !(je > 0) || !p.Fe.IsFinite() || !p.Fp.IsFinite() {
		return ElasticState{}, &DeformationError{Particle: index, Det: je}
	}
	svd, ok := dec.Factorize(p.Fe)
	if !ok {
		return ElasticState{}, &DeformationError{Particle: index, Det: je}
	}

	jp := p.Fp.Det()
	xi := math.Exp(m.Hardening * (1 - jp))

	return ElasticState{
		Fe:      p.Fe,
		R:       svd.Rotation(),
		S:       svd.Stretch(),
		Cof:     p.Fe.Cofactor(),
		Je:      je,
		Jp:      jp,
		Mu:      m.Mu0 * xi,
		Lambda:  m.Lambda0 * xi,
		Volume0: p.Volume0,
	}, nil
}

// Force returns the unweighted force matrix −V0·[2μ(Fe−R)Feᵀ + λ(Je−1)Je·I].
// Multiplying it by a weight gradient gives the contribution to one node.
func (s *ElasticState) Force() linalg.Mat3 {
	shear := s.Fe.Sub(s.R).Mul(s.Fe.T()).Scale(2 * s.Mu)
	volume := linalg.ScalarMat(s.Lambda * (s.Je - 1) * s.Je)
	return shear.Add(volume).Scale(-s.Volume0)
}

// ForceDifferential returns the change of the unweighted force for a
// perturbation dFe of the elastic deformation gradient, with the trailing
// Feᵀ held fixed:
//
//	−V0·[2μ(δFe−δR) + λ(cof·δJ + (Je−1)·δcof)]·Feᵀ
func (s *ElasticState) ForceDifferential(dFe linalg.Mat3) linalg.Mat3 {
	dR, ok := linalg.RotationDifferential(s.R, s.S, dFe)
	if !ok {
		dR = linalg.Mat3{}
	}
	dCof := linalg.CofactorDifferential(s.Fe, dFe)
	dJ := linalg.DeterminantDifferential(s.Cof, dFe)

	shear := dFe.Sub(dR).Scale(2 * s.Mu)
	volume := s.Cof.Scale(dJ).Add(dCof.Scale(s.Je - 1)).Scale(s.Lambda)
	return shear.Add(volume).Mul(s.Fe.T()).Scale(-s.Volume0)
}
