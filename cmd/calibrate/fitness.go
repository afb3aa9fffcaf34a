package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/snow/collide"
	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/config"
	"github.com/pthm-cable/snow/scene"
	"github.com/pthm-cable/snow/sim"
)

// blowupPenalty is the fitness floor of a run that blew up. Earlier
// failures score worse.
const blowupPenalty = 1e3

// Shape summarizes where the snow ended up.
type Shape struct {
	Height float64 // mean particle z
	Spread float64 // RMS horizontal distance from the centroid
}

// measure computes the shape of a particle set.
func measure(particles []components.Particle) Shape {
	n := float64(len(particles))
	if n == 0 {
		return Shape{}
	}
	var cx, cy, cz float64
	for i := range particles {
		p := particles[i].Position
		cx += p.X
		cy += p.Y
		cz += p.Z
	}
	cx, cy = cx/n, cy/n

	var r2 float64
	for i := range particles {
		dx := particles[i].Position.X - cx
		dy := particles[i].Position.Y - cy
		r2 += dx*dx + dy*dy
	}
	return Shape{Height: cz / n, Spread: math.Sqrt(r2 / n)}
}

// FitnessEvaluator runs headless drops and scores the settled shape
// against a target.
type FitnessEvaluator struct {
	params     *ParamVector
	ticks      int
	target     Shape
	baseConfig *config.Config

	mu        sync.Mutex
	lastShape Shape
	lastTicks int
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks int, target Shape, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		ticks:      ticks,
		target:     target,
		baseConfig: baseCfg,
	}
}

// Last returns the shape and completed ticks of the most recent run.
func (fe *FitnessEvaluator) Last() (Shape, int) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastShape, fe.lastTicks
}

// Evaluate computes fitness for a raw parameter vector (lower = better):
// the sum of squared relative errors of height and spread.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	shape, done, err := fe.run(cfg)

	fe.mu.Lock()
	fe.lastShape, fe.lastTicks = shape, done
	fe.mu.Unlock()

	if err != nil {
		return blowupPenalty * (2 - float64(done)/float64(fe.ticks))
	}
	dh := (shape.Height - fe.target.Height) / fe.target.Height
	ds := (shape.Spread - fe.target.Spread) / fe.target.Spread
	return dh*dh + ds*ds
}

// run drops the configured scene and returns its shape after fe.ticks.
func (fe *FitnessEvaluator) run(cfg *config.Config) (Shape, int, error) {
	colliders, err := collide.FromConfig(cfg.Colliders)
	if err != nil {
		return Shape{}, 0, err
	}
	particles, err := scene.FromConfig(cfg)
	if err != nil {
		return Shape{}, 0, err
	}

	s, err := sim.New(sim.ParamsFromConfig(cfg),
		sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		sim.WithCollider(colliders),
		sim.WithWorkers(cfg.Run.Workers),
	)
	if err != nil {
		return Shape{}, 0, err
	}
	defer s.Close()
	s.AddParticles(particles)

	err = s.Run(context.Background(), fe.ticks)
	return measure(s.Particles()), s.Tick(), err
}

// copyConfig returns a copy of the base config. Only the material section
// is modified, so slices may stay shared.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
