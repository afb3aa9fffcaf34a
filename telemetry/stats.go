package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
)

// TickStats is a snapshot of the solver state after a tick.
type TickStats struct {
	Tick      int     `csv:"tick"`
	SimTime   float64 `csv:"sim_time"`
	Particles int     `csv:"particles"`

	// Conservation
	ParticleMass  float64 `csv:"particle_mass"`
	GridMass      float64 `csv:"grid_mass"` // mass that landed on the lattice
	KineticEnergy float64 `csv:"kinetic_energy"`
	Momentum      float64 `csv:"momentum_z"`

	// Motion
	MaxSpeed float64 `csv:"max_speed"`
	MinZ     float64 `csv:"min_z"`
	MeanZ    float64 `csv:"mean_z"`

	// Deformation
	JeMin  float64 `csv:"je_min"`
	JeMax  float64 `csv:"je_max"`
	JpMean float64 `csv:"jp_mean"`
	JpP10  float64 `csv:"jp_p10"`
	JpP50  float64 `csv:"jp_p50"`
	JpP90  float64 `csv:"jp_p90"`

	// Implicit solve (zero when explicit)
	SolverIterations int     `csv:"solver_iterations"`
	SolverResidual   float64 `csv:"solver_residual"`
	SolverConverged  bool    `csv:"solver_converged"`
}

// ComputeTickStats reduces the particle set into a TickStats. Solver and
// grid fields are left for the caller.
func ComputeTickStats(tick int, simTime float64, particles []components.Particle) TickStats {
	s := TickStats{Tick: tick, SimTime: simTime, Particles: len(particles)}
	n := len(particles)
	if n == 0 {
		return s
	}

	mass := make([]float64, n)
	speed2 := make([]float64, n)
	z := make([]float64, n)
	je := make([]float64, n)
	jp := make([]float64, n)
	for i := range particles {
		p := &particles[i]
		mass[i] = p.Mass
		speed2[i] = r3.Norm2(p.Velocity)
		z[i] = p.Position.Z
		je[i] = p.Fe.Det()
		jp[i] = p.Fp.Det()
		s.Momentum += p.Mass * p.Velocity.Z
	}

	s.ParticleMass = floats.Sum(mass)
	s.KineticEnergy = 0.5 * floats.Dot(mass, speed2)
	s.MaxSpeed = math.Sqrt(floats.Max(speed2))
	s.MinZ = floats.Min(z)
	s.MeanZ = floats.Sum(z) / float64(n)
	s.JeMin = floats.Min(je)
	s.JeMax = floats.Max(je)
	s.JpMean, s.JpP10, s.JpP50, s.JpP90 = Summarize(jp)
	return s
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize returns the mean and 10th/50th/90th percentiles of values.
// values is not modified.
func Summarize(values []float64) (mean, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}
	mean = floats.Sum(values) / float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s TickStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("tick", s.Tick),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Float64("grid_mass", s.GridMass),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("min_z", s.MinZ),
		slog.Float64("je_min", s.JeMin),
		slog.Float64("je_max", s.JeMax),
		slog.Float64("jp_p50", s.JpP50),
	}
	if s.SolverIterations > 0 {
		attrs = append(attrs,
			slog.Int("solver_iterations", s.SolverIterations),
			slog.Float64("solver_residual", s.SolverResidual),
			slog.Bool("solver_converged", s.SolverConverged),
		)
	}
	return slog.GroupValue(attrs...)
}

// ParticleRecord is one row of a particle frame CSV.
type ParticleRecord struct {
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
	VX     float64 `csv:"vx"`
	VY     float64 `csv:"vy"`
	VZ     float64 `csv:"vz"`
	Mass   float64 `csv:"mass"`
	Volume float64 `csv:"volume0"`
	Je     float64 `csv:"je"`
	Jp     float64 `csv:"jp"`
}

// ParticleRecords converts particles to frame rows.
func ParticleRecords(particles []components.Particle) []ParticleRecord {
	out := make([]ParticleRecord, len(particles))
	for i := range particles {
		p := &particles[i]
		out[i] = ParticleRecord{
			X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
			VX: p.Velocity.X, VY: p.Velocity.Y, VZ: p.Velocity.Z,
			Mass:   p.Mass,
			Volume: p.Volume0,
			Je:     p.Fe.Det(),
			Jp:     p.Fp.Det(),
		}
	}
	return out
}
