package sim

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
	"github.com/pthm-cable/snow/systems"
	"github.com/pthm-cable/snow/telemetry"
)

// Collider corrects grid and particle velocities against scene geometry.
type Collider = systems.Collider

// Simulation owns the particle set and background grid and advances them
// one tick at a time.
type Simulation struct {
	params   Params
	material systems.Material
	grid     *systems.Grid
	dirty    bool // grid must be rebuilt before the next tick

	particles []components.Particle
	stencils  []systems.Stencil
	states    []systems.ElasticState
	forces    []linalg.Mat3

	op   systems.ImplicitOperator
	cr   systems.ConjugateResidual
	pool *systems.Pool

	collider Collider
	logger   *slog.Logger
	perf     *telemetry.PerfCollector

	tick      int
	simTime   float64
	gridMass  float64
	lastSolve systems.SolveResult
	failed    error
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithCollider installs the collision policy.
func WithCollider(c Collider) Option {
	return func(s *Simulation) { s.collider = c }
}

// WithPerf records per-phase tick timings into pc.
func WithPerf(pc *telemetry.PerfCollector) Option {
	return func(s *Simulation) { s.perf = pc }
}

// WithWorkers sets the size of the worker pool. n <= 0 uses GOMAXPROCS;
// 1 runs every stage on the calling goroutine.
func WithWorkers(n int) Option {
	return func(s *Simulation) { s.pool = systems.NewPool(n) }
}

// New creates an empty simulation.
func New(params Params, opts ...Option) (*Simulation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = systems.NewPool(0)
	}
	s.applyParams(params)
	s.rebuild()
	return s, nil
}

// AddParticle appends an undeformed particle.
func (s *Simulation) AddParticle(position, velocity r3.Vec, mass float64) {
	s.particles = append(s.particles, components.NewParticle(position, velocity, mass))
}

// AddParticles appends particles as given. Reference volumes are computed
// on tick 0, so particles added later keep whatever Volume0 they carry.
func (s *Simulation) AddParticles(ps []components.Particle) {
	s.particles = append(s.particles, ps...)
}

// Particles returns the live particle slice. Callers must not hold it
// across Step.
func (s *Simulation) Particles() []components.Particle { return s.particles }

// Grid returns the current lattice.
func (s *Simulation) Grid() *systems.Grid { return s.grid }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int { return s.tick }

// Time returns the simulated time in seconds.
func (s *Simulation) Time() float64 { return s.simTime }

// Params returns the current parameters.
func (s *Simulation) Params() Params { return s.params }

// Err returns the error that stopped the simulation, if any.
func (s *Simulation) Err() error { return s.failed }

// LastSolve returns the implicit solve result of the last tick. It is zero
// when the tick was explicit.
func (s *Simulation) LastSolve() systems.SolveResult { return s.lastSolve }

// SetParams replaces the parameters. A change of spacing or size rebuilds
// the grid before the next tick.
func (s *Simulation) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.params.gridChanged(p) {
		s.dirty = true
	}
	s.applyParams(p)
	return nil
}

// SetCollider replaces the collision policy. nil disables collisions.
func (s *Simulation) SetCollider(c Collider) { s.collider = c }

func (s *Simulation) applyParams(p Params) {
	s.params = p
	s.material = systems.NewMaterial(p.YoungsModulus, p.PoissonsRatio, p.Hardening,
		p.CriticalCompression, p.CriticalStretch)
	s.cr.MaxIterations = p.MaxIterations
	s.cr.Tolerance = p.Tolerance
}

func (s *Simulation) rebuild() {
	s.grid = systems.NewGrid(s.params.Spacing, s.params.Size)
	s.dirty = false
	s.logger.Info("grid rebuilt",
		"size", s.params.Size,
		"spacing", s.params.Spacing,
		"nodes", s.grid.NodeCount(),
	)
}

// Step advances the simulation by one tick. A degenerate deformation stops
// the tick with a *BlowupError; every later Step returns the same error.
func (s *Simulation) Step() error {
	if s.failed != nil {
		return s.failed
	}
	if s.dirty {
		s.rebuild()
	}
	p := s.params
	s.logger.Debug("tick", "tick", s.tick, "dt", p.Dt)

	s.perf.StartTick(len(s.particles))
	defer s.perf.EndTick()

	s.perf.StartPhase(telemetry.PhaseRasterize)
	s.stencils = systems.ComputeStencils(s.stencils, s.particles, s.grid.InvH, s.pool)
	s.gridMass = systems.Rasterize(s.grid, s.particles, s.stencils)

	if s.tick == 0 {
		s.perf.StartPhase(telemetry.PhaseVolumes)
		nodeDensity, particleDensity := systems.InitVolumes(s.grid, s.particles, s.stencils)
		s.logger.Debug("volumes initialized",
			"grid_mass", s.gridMass,
			"avg_node_density", nodeDensity,
			"avg_particle_density", particleDensity,
		)
	}

	s.perf.StartPhase(telemetry.PhaseForces)
	s.reserve(len(s.particles))
	if err := systems.EvaluateStates(s.material, s.particles, s.states, s.forces, s.pool); err != nil {
		return s.fail(telemetry.PhaseForces, err)
	}
	systems.AssembleForces(s.grid, s.stencils, s.forces, p.Gravity)

	s.perf.StartPhase(telemetry.PhaseExplicit)
	systems.ExplicitUpdate(s.grid, p.Dt, s.collider)

	if p.ImplicitRatio > 0 {
		s.perf.StartPhase(telemetry.PhaseImplicit)
		s.op.Grid = s.grid
		s.op.Stencils = s.stencils
		s.op.States = s.states
		s.op.Dt = p.Dt
		s.op.Beta = p.ImplicitRatio
		s.op.Pool = s.pool
		s.lastSolve = s.op.Solve(&s.cr)
		s.perf.RecordSolve(s.lastSolve.Iterations, s.lastSolve.Residual, s.lastSolve.Converged)
		if !s.lastSolve.Converged {
			s.logger.Debug("implicit solve did not converge",
				"tick", s.tick,
				"iterations", s.lastSolve.Iterations,
				"residual", s.lastSolve.Residual,
			)
		}
	} else {
		s.grid.CommitExplicit()
		s.lastSolve = systems.SolveResult{}
	}

	s.perf.StartPhase(telemetry.PhaseG2P)
	tp := systems.TransferParams{
		Dt:                  p.Dt,
		FlipBlend:           p.FlipBlend,
		CriticalCompression: p.CriticalCompression,
		CriticalStretch:     p.CriticalStretch,
	}
	if err := systems.UpdateParticles(s.grid, s.particles, s.stencils, tp, s.collider, s.pool); err != nil {
		return s.fail(telemetry.PhaseG2P, err)
	}

	s.tick++
	s.simTime += p.Dt
	return nil
}

// Run steps n ticks, stopping early on error or when ctx is done.
func (s *Simulation) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the particle set and the last tick.
func (s *Simulation) Stats() telemetry.TickStats {
	st := telemetry.ComputeTickStats(s.tick, s.simTime, s.particles)
	st.GridMass = s.gridMass
	st.SolverIterations = s.lastSolve.Iterations
	st.SolverResidual = s.lastSolve.Residual
	st.SolverConverged = s.lastSolve.Converged
	return st
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	s.pool.Close()
}

func (s *Simulation) reserve(n int) {
	if cap(s.states) < n {
		s.states = make([]systems.ElasticState, n)
		s.forces = make([]linalg.Mat3, n)
	}
	s.states = s.states[:n]
	s.forces = s.forces[:n]
}

func (s *Simulation) fail(phase string, err error) error {
	s.failed = blowup(s.tick, phase, err)
	s.logger.Error("simulation blew up", "tick", s.tick, "phase", phase, "error", err)
	return s.failed
}
