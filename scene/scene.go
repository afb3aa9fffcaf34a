// Package scene generates initial particle sets on a regular lattice.
package scene

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/config"
)

// ErrInvalidShape is returned for shapes with no volume or bad sampling
// parameters.
var ErrInvalidShape = errors.New("scene: invalid shape")

// ParticleMass is the mass of one lattice particle: density · spacing³.
func ParticleMass(density, spacing float64) float64 {
	return density * spacing * spacing * spacing
}

// Sphere fills a ball with particles on a lattice centered at center.
// Every particle starts undeformed with the given velocity.
func Sphere(center r3.Vec, radius, density, spacing float64, velocity r3.Vec) ([]components.Particle, error) {
	if err := checkSampling(density, spacing); err != nil {
		return nil, err
	}
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidShape, radius)
	}

	mass := ParticleMass(density, spacing)
	n := int(math.Ceil(radius / spacing))
	r2 := radius * radius

	var out []components.Particle
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			for k := -n; k <= n; k++ {
				off := r3.Vec{X: float64(i) * spacing, Y: float64(j) * spacing, Z: float64(k) * spacing}
				if r3.Norm2(off) > r2 {
					continue
				}
				out = append(out, components.NewParticle(r3.Add(center, off), velocity, mass))
			}
		}
	}
	return out, nil
}

// Slab fills the box [min, max) with particles at cell centers of a lattice
// anchored at min.
func Slab(min, max r3.Vec, density, spacing float64, velocity r3.Vec) ([]components.Particle, error) {
	if err := checkSampling(density, spacing); err != nil {
		return nil, err
	}
	ext := r3.Sub(max, min)
	if !(ext.X > 0 && ext.Y > 0 && ext.Z > 0) {
		return nil, fmt.Errorf("%w: slab %v to %v", ErrInvalidShape, min, max)
	}

	mass := ParticleMass(density, spacing)
	nx, ny, nz := cells(ext.X, spacing), cells(ext.Y, spacing), cells(ext.Z, spacing)

	out := make([]components.Particle, 0, nx*ny*nz)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				pos := r3.Vec{
					X: min.X + (float64(i)+0.5)*spacing,
					Y: min.Y + (float64(j)+0.5)*spacing,
					Z: min.Z + (float64(k)+0.5)*spacing,
				}
				out = append(out, components.NewParticle(pos, velocity, mass))
			}
		}
	}
	return out, nil
}

// FromConfig generates every configured shape in order.
func FromConfig(cfg *config.Config) ([]components.Particle, error) {
	density := cfg.Material.Density
	spacing := cfg.Scene.ParticleSpacing

	var out []components.Particle
	for i, s := range cfg.Scene.Shapes {
		var ps []components.Particle
		var err error
		switch s.Kind {
		case "sphere":
			ps, err = Sphere(vec(s.Center), s.Radius, density, spacing, vec(s.Velocity))
		case "slab":
			ps, err = Slab(vec(s.Min), vec(s.Max), density, spacing, vec(s.Velocity))
		default:
			err = fmt.Errorf("%w: kind %q", ErrInvalidShape, s.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

func checkSampling(density, spacing float64) error {
	if !(density > 0) || !(spacing > 0) {
		return fmt.Errorf("%w: density %v spacing %v", ErrInvalidShape, density, spacing)
	}
	return nil
}

// cells counts whole lattice cells along a length, forgiving rounding in
// lengths like 0.8 − 0.2.
func cells(length, spacing float64) int {
	return int(math.Floor(length/spacing + 1e-9))
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
