package telemetry

import (
	"log/slog"
	"math"
	"time"
)

// Phase names for the solver tick.
const (
	PhaseRasterize = "rasterize"
	PhaseVolumes   = "volumes"
	PhaseForces    = "forces"
	PhaseExplicit  = "explicit"
	PhaseImplicit  = "implicit"
	PhaseG2P       = "g2p"
)

// Phases lists every phase in pipeline order.
var Phases = []string{
	PhaseRasterize, PhaseVolumes, PhaseForces,
	PhaseExplicit, PhaseImplicit, PhaseG2P,
}

const numPhases = 6

func phaseIndex(phase string) int {
	for i, p := range Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// tickSample is the cost of one solver tick.
type tickSample struct {
	duration  time.Duration
	phases    [numPhases]time.Duration
	ran       [numPhases]bool
	particles int

	implicit   bool
	iterations int
	residual   float64
	converged  bool
}

// PerfCollector tracks solver cost over a rolling window of ticks: wall
// time per phase, particle throughput and conjugate-residual effort.
// A nil *PerfCollector ignores every call, so the solver can time its
// phases unconditionally.
type PerfCollector struct {
	window  []tickSample
	next    int
	filled  int
	current tickSample

	tickStart  time.Time
	phaseStart time.Time
	phase      int
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{window: make([]tickSample, windowSize), phase: -1}
}

// StartTick begins timing a tick over the given number of particles.
func (p *PerfCollector) StartTick(particles int) {
	if p == nil {
		return
	}
	p.tickStart = time.Now()
	p.current = tickSample{particles: particles}
	p.phase = -1
}

// StartPhase closes the running phase and starts timing the next one.
// Unknown phase names only stop the running phase.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phase = phaseIndex(phase)
	p.phaseStart = now
}

// RecordSolve notes the outcome of this tick's implicit solve.
func (p *PerfCollector) RecordSolve(iterations int, residual float64, converged bool) {
	if p == nil {
		return
	}
	p.current.implicit = true
	p.current.iterations = iterations
	p.current.residual = residual
	p.current.converged = converged
}

// EndTick closes the running phase and records the tick.
func (p *PerfCollector) EndTick() {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.current.duration = now.Sub(p.tickStart)

	p.window[p.next] = p.current
	p.next = (p.next + 1) % len(p.window)
	if p.filled < len(p.window) {
		p.filled++
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase < 0 {
		return
	}
	p.current.phases[p.phase] += now.Sub(p.phaseStart)
	p.current.ran[p.phase] = true
	p.phase = -1
}

// PerfStats aggregates the collector window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	// Average duration and share of tick time per phase, for phases that
	// ran at least once in the window.
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond     float64
	ParticlesPerSecond float64 // particle updates per wall-clock second

	// Conjugate-residual effort over the implicit ticks in the window.
	ImplicitTicks    int
	AvgIterations    float64
	MaxIterations    int
	MaxResidual      float64
	UnconvergedTicks int
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p == nil || p.filled == 0 {
		return stats
	}

	var total time.Duration
	var phaseSum [numPhases]time.Duration
	var ran [numPhases]bool
	var particles, iterations int
	for i, s := range p.window[:p.filled] {
		total += s.duration
		if i == 0 || s.duration < stats.MinTickDuration {
			stats.MinTickDuration = s.duration
		}
		stats.MaxTickDuration = max(stats.MaxTickDuration, s.duration)
		particles += s.particles
		for k := range phaseSum {
			phaseSum[k] += s.phases[k]
			ran[k] = ran[k] || s.ran[k]
		}

		if !s.implicit {
			continue
		}
		stats.ImplicitTicks++
		iterations += s.iterations
		stats.MaxIterations = max(stats.MaxIterations, s.iterations)
		stats.MaxResidual = math.Max(stats.MaxResidual, s.residual)
		if !s.converged {
			stats.UnconvergedTicks++
		}
	}

	n := time.Duration(p.filled)
	stats.AvgTickDuration = total / n
	for k, phase := range Phases {
		if !ran[k] {
			continue
		}
		stats.PhaseAvg[phase] = phaseSum[k] / n
		if total > 0 {
			stats.PhasePct[phase] = float64(phaseSum[k]) / float64(total) * 100
		}
	}
	if total > 0 {
		stats.TicksPerSecond = float64(p.filled) / total.Seconds()
		stats.ParticlesPerSecond = float64(particles) / total.Seconds()
	}
	if stats.ImplicitTicks > 0 {
		stats.AvgIterations = float64(iterations) / float64(stats.ImplicitTicks)
	}
	return stats
}

// LogStats logs the window summary at Info.
func (s PerfStats) LogStats(logger *slog.Logger) {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"particles_per_sec", int(s.ParticlesPerSecond),
	}
	if s.ImplicitTicks > 0 {
		attrs = append(attrs,
			"cr_avg_iterations", math.Round(s.AvgIterations*10)/10,
			"cr_max_iterations", s.MaxIterations,
			"cr_unconverged", s.UnconvergedTicks,
		)
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", math.Round(pct*10)/10)
		}
	}
	logger.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("particles_per_sec", s.ParticlesPerSecond),
	}
	if s.ImplicitTicks > 0 {
		attrs = append(attrs, slog.Group("cr",
			slog.Int("ticks", s.ImplicitTicks),
			slog.Float64("avg_iterations", s.AvgIterations),
			slog.Int("max_iterations", s.MaxIterations),
			slog.Float64("max_residual", s.MaxResidual),
			slog.Int("unconverged", s.UnconvergedTicks),
		))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd        int     `csv:"window_end"`
	AvgTickUS        int64   `csv:"avg_tick_us"`
	MinTickUS        int64   `csv:"min_tick_us"`
	MaxTickUS        int64   `csv:"max_tick_us"`
	TicksPerSec      float64 `csv:"ticks_per_sec"`
	ParticlesPerSec  float64 `csv:"particles_per_sec"`
	ImplicitTicks    int     `csv:"implicit_ticks"`
	AvgIterations    float64 `csv:"cr_avg_iterations"`
	MaxIterations    int     `csv:"cr_max_iterations"`
	MaxResidual      float64 `csv:"cr_max_residual"`
	UnconvergedTicks int     `csv:"cr_unconverged"`
	RasterizePct     float64 `csv:"rasterize_pct"`
	VolumesPct       float64 `csv:"volumes_pct"`
	ForcesPct        float64 `csv:"forces_pct"`
	ExplicitPct      float64 `csv:"explicit_pct"`
	ImplicitPct      float64 `csv:"implicit_pct"`
	G2PPct           float64 `csv:"g2p_pct"`
}

// ToCSV flattens the stats into a perf.csv row.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:        windowEnd,
		AvgTickUS:        s.AvgTickDuration.Microseconds(),
		MinTickUS:        s.MinTickDuration.Microseconds(),
		MaxTickUS:        s.MaxTickDuration.Microseconds(),
		TicksPerSec:      s.TicksPerSecond,
		ParticlesPerSec:  s.ParticlesPerSecond,
		ImplicitTicks:    s.ImplicitTicks,
		AvgIterations:    s.AvgIterations,
		MaxIterations:    s.MaxIterations,
		MaxResidual:      s.MaxResidual,
		UnconvergedTicks: s.UnconvergedTicks,
		RasterizePct:     s.PhasePct[PhaseRasterize],
		VolumesPct:       s.PhasePct[PhaseVolumes],
		ForcesPct:        s.PhasePct[PhaseForces],
		ExplicitPct:      s.PhasePct[PhaseExplicit],
		ImplicitPct:      s.PhasePct[PhaseImplicit],
		G2PPct:           s.PhasePct[PhaseG2P],
	}
}
