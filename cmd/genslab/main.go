// Genslab writes the initial state of the falling-slab scene.
//
// Usage: go run ./cmd/genslab -dt 5e-4 -beta 0.5 -out frame-0.snow
package main

import (
	"flag"
	"log/slog"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/scene"
	"github.com/pthm-cable/snow/sim"
)

const (
	density      = 400    // kg/m³
	particleSize = 0.0072 // m
	gridSpacing  = 2 * particleSize
	domain       = 1.0 // m, per axis
)

var (
	slabMin = r3.Vec{X: 0.2, Y: 0.45, Z: 0.7}
	slabMax = r3.Vec{X: 0.8, Y: 0.55, Z: 0.9}
)

func main() {
	dt := flag.Float64("dt", 5e-4, "Time step (s)")
	beta := flag.Float64("beta", 0, "Implicit ratio (0 = explicit)")
	outPath := flag.String("out", "frame-0.snow", "Output state file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	s, err := newSlab(*dt, *beta, logger)
	if err != nil {
		slog.Error("building slab", "error", err)
		os.Exit(1)
	}
	defer s.Close()
	p := s.Params()
	slog.Info("slab generated", "particles", len(s.Particles()), "grid", p.Size, "dt", p.Dt, "beta", p.ImplicitRatio)

	if err := s.SaveState(*outPath); err != nil {
		slog.Error("writing state", "error", err)
		os.Exit(1)
	}
	slog.Info("frame 0 written", "path", *outPath)
}

// newSlab builds the slab scene on a 1 m³ grid at twice the particle
// spacing.
func newSlab(dt, beta float64, logger *slog.Logger) (*sim.Simulation, error) {
	p := sim.DefaultParams()
	n := int(math.Floor(domain / gridSpacing))
	p.Spacing = gridSpacing
	p.Size = [3]int{n, n, n}
	p.Dt = dt
	p.ImplicitRatio = beta

	s, err := sim.New(p, sim.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	particles, err := scene.Slab(slabMin, slabMax, density, particleSize, r3.Vec{})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.AddParticles(particles)
	return s, nil
}
