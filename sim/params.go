package sim

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/config"
)

// Params are the solver tunables. All of them may change between ticks
// through SetParams.
type Params struct {
	Spacing float64 // grid spacing h
	Size    [3]int  // nodes per axis
	Dt      float64

	YoungsModulus       float64
	PoissonsRatio       float64
	CriticalCompression float64
	CriticalStretch     float64
	Hardening           float64

	FlipBlend     float64 // α
	ImplicitRatio float64 // β, 0 disables the implicit solve
	MaxIterations int
	Tolerance     float64

	Gravity r3.Vec // acceleration applied to every grid node
}

// DefaultParams returns the standard snow material on a 1 m cube with
// h = 0.02, explicit integration.
func DefaultParams() Params {
	return Params{
		Spacing:             0.02,
		Size:                [3]int{50, 50, 50},
		Dt:                  5e-4,
		YoungsModulus:       1.4e5,
		PoissonsRatio:       0.2,
		CriticalCompression: 2.5e-2,
		CriticalStretch:     7.5e-3,
		Hardening:           10,
		FlipBlend:           0.95,
		ImplicitRatio:       0,
		MaxIterations:       500,
		Tolerance:           1e-10,
		Gravity:             r3.Vec{Z: -9.8},
	}
}

// ParamsFromConfig maps a loaded config onto solver parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Spacing:             cfg.Grid.Spacing,
		Size:                cfg.Grid.Size,
		Dt:                  cfg.Time.DT,
		YoungsModulus:       cfg.Material.YoungsModulus,
		PoissonsRatio:       cfg.Material.PoissonsRatio,
		CriticalCompression: cfg.Material.CriticalCompression,
		CriticalStretch:     cfg.Material.CriticalStretch,
		Hardening:           cfg.Material.Hardening,
		FlipBlend:           cfg.Integration.FlipBlend,
		ImplicitRatio:       cfg.Integration.ImplicitRatio,
		MaxIterations:       cfg.Integration.MaxIterations,
		Tolerance:           cfg.Integration.Tolerance,
		Gravity:             r3.Vec{X: cfg.Gravity[0], Y: cfg.Gravity[1], Z: cfg.Gravity[2]},
	}
}

// maxGridNodes bounds the node count of the background grid.
const maxGridNodes = 1 << 27

// gridNodes returns the node count of size, or -1 when an axis is empty or
// the count exceeds maxGridNodes.
func gridNodes(size [3]int) int {
	n := 1
	for _, s := range size {
		if s <= 0 || s > maxGridNodes/n {
			return -1
		}
		n *= s
	}
	return n
}

// Validate checks parameter ranges. Errors wrap ErrInvalidParams.
func (p Params) Validate() error {
	bad := func(name string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalidParams, name, v)
	}
	switch {
	case !(p.Spacing > 0):
		return bad("spacing", p.Spacing)
	case gridNodes(p.Size) < 0:
		return bad("size", p.Size)
	case !(p.Dt > 0):
		return bad("dt", p.Dt)
	case !(p.YoungsModulus > 0):
		return bad("youngs modulus", p.YoungsModulus)
	case !(p.PoissonsRatio > -1 && p.PoissonsRatio < 0.5):
		return bad("poissons ratio", p.PoissonsRatio)
	case !(p.CriticalCompression >= 0 && p.CriticalCompression < 1):
		return bad("critical compression", p.CriticalCompression)
	case !(p.CriticalStretch >= 0):
		return bad("critical stretch", p.CriticalStretch)
	case !(p.FlipBlend >= 0 && p.FlipBlend <= 1):
		return bad("flip blend", p.FlipBlend)
	case !(p.ImplicitRatio >= 0):
		return bad("implicit ratio", p.ImplicitRatio)
	case p.MaxIterations <= 0:
		return bad("max iterations", p.MaxIterations)
	case !(p.Tolerance > 0):
		return bad("tolerance", p.Tolerance)
	}
	return nil
}

// gridChanged reports whether switching from p to q requires a new lattice.
func (p Params) gridChanged(q Params) bool {
	return p.Spacing != q.Spacing || p.Size != q.Size
}
