// Package config provides configuration loading and access for the solver.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all solver and run configuration.
type Config struct {
	Grid        GridConfig        `yaml:"grid"`
	Time        TimeConfig        `yaml:"time"`
	Material    MaterialConfig    `yaml:"material"`
	Integration IntegrationConfig `yaml:"integration"`
	Gravity     [3]float64        `yaml:"gravity"`
	Scene       SceneConfig       `yaml:"scene"`
	Colliders   []ColliderConfig  `yaml:"colliders"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Run         RunConfig         `yaml:"run"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the background lattice layout.
type GridConfig struct {
	Spacing float64 `yaml:"spacing"` // h, in metres
	Size    [3]int  `yaml:"size"`    // nodes per axis
}

// TimeConfig holds time stepping parameters.
type TimeConfig struct {
	DT float64 `yaml:"dt"`
}

// MaterialConfig holds the snow constitutive parameters.
type MaterialConfig struct {
	YoungsModulus       float64 `yaml:"youngs_modulus"`       // E0, Pa
	PoissonsRatio       float64 `yaml:"poissons_ratio"`       // ν
	CriticalCompression float64 `yaml:"critical_compression"` // θc
	CriticalStretch     float64 `yaml:"critical_stretch"`     // θs
	Hardening           float64 `yaml:"hardening"`            // ξ
	Density             float64 `yaml:"density"`              // kg/m³, used by scene generators
}

// IntegrationConfig holds velocity integration parameters.
type IntegrationConfig struct {
	FlipBlend     float64 `yaml:"flip_blend"`     // α: 0 = PIC, 1 = FLIP
	ImplicitRatio float64 `yaml:"implicit_ratio"` // β: 0 disables the implicit solve
	MaxIterations int     `yaml:"max_iterations"` // Krylov iteration cap
	Tolerance     float64 `yaml:"tolerance"`      // absolute residual norm
}

// SceneConfig describes the initial particle set.
type SceneConfig struct {
	ParticleSpacing float64       `yaml:"particle_spacing"` // lattice spacing of generated particles
	Shapes          []ShapeConfig `yaml:"shapes"`
}

// ShapeConfig is one generated body. Kind is "sphere" or "slab".
type ShapeConfig struct {
	Kind     string     `yaml:"kind"`
	Center   [3]float64 `yaml:"center"`   // sphere
	Radius   float64    `yaml:"radius"`   // sphere
	Min      [3]float64 `yaml:"min"`      // slab
	Max      [3]float64 `yaml:"max"`      // slab
	Velocity [3]float64 `yaml:"velocity"` // initial velocity of every particle
}

// ColliderConfig is one static collision body. Kind is "plane" or "sphere".
type ColliderConfig struct {
	Kind     string     `yaml:"kind"`
	Point    [3]float64 `yaml:"point"`  // plane: any point on the plane
	Normal   [3]float64 `yaml:"normal"` // plane: outward normal
	Center   [3]float64 `yaml:"center"` // sphere
	Radius   float64    `yaml:"radius"` // sphere
	Friction float64    `yaml:"friction"`
	Sticky   bool       `yaml:"sticky"` // zero the whole velocity on contact
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	PerfWindow    int  `yaml:"perf_window"`    // ticks averaged by the perf collector
	LogInterval   int  `yaml:"log_interval"`   // ticks between stats log lines
	FrameInterval int  `yaml:"frame_interval"` // ticks between particle CSV frames (0 = never)
	SaveInterval  int  `yaml:"save_interval"`  // ticks between binary state saves (0 = never)
	WriteFrames   bool `yaml:"write_frames"`
}

// RunConfig holds driver parameters.
type RunConfig struct {
	MaxTicks int `yaml:"max_ticks"`
	Workers  int `yaml:"workers"` // 0 = GOMAXPROCS
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	Mu0          float64 // shear modulus
	Lambda0      float64 // first Lamé parameter
	InvSpacing   float64
	NodeCount    int
	ParticleMass float64 // density · particle_spacing³
	Extent       [3]float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	bad := func(field string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalid, field, v)
	}

	if c.Grid.Spacing <= 0 {
		return bad("grid.spacing", c.Grid.Spacing)
	}
	for _, n := range c.Grid.Size {
		if n <= 0 {
			return bad("grid.size", c.Grid.Size)
		}
	}
	if c.Time.DT <= 0 {
		return bad("time.dt", c.Time.DT)
	}

	m := c.Material
	if m.YoungsModulus <= 0 {
		return bad("material.youngs_modulus", m.YoungsModulus)
	}
	if m.PoissonsRatio <= -1 || m.PoissonsRatio >= 0.5 {
		return bad("material.poissons_ratio", m.PoissonsRatio)
	}
	if m.CriticalCompression < 0 || m.CriticalCompression >= 1 {
		return bad("material.critical_compression", m.CriticalCompression)
	}
	if m.CriticalStretch < 0 {
		return bad("material.critical_stretch", m.CriticalStretch)
	}
	if m.Density <= 0 {
		return bad("material.density", m.Density)
	}

	in := c.Integration
	if in.FlipBlend < 0 || in.FlipBlend > 1 {
		return bad("integration.flip_blend", in.FlipBlend)
	}
	if in.ImplicitRatio < 0 {
		return bad("integration.implicit_ratio", in.ImplicitRatio)
	}
	if in.MaxIterations <= 0 {
		return bad("integration.max_iterations", in.MaxIterations)
	}
	if in.Tolerance <= 0 {
		return bad("integration.tolerance", in.Tolerance)
	}

	if c.Scene.ParticleSpacing <= 0 {
		return bad("scene.particle_spacing", c.Scene.ParticleSpacing)
	}
	for i, s := range c.Scene.Shapes {
		switch s.Kind {
		case "sphere":
			if s.Radius <= 0 {
				return bad(fmt.Sprintf("scene.shapes[%d].radius", i), s.Radius)
			}
		case "slab":
			for a := 0; a < 3; a++ {
				if s.Max[a] <= s.Min[a] {
					return bad(fmt.Sprintf("scene.shapes[%d].max", i), s.Max)
				}
			}
		default:
			return bad(fmt.Sprintf("scene.shapes[%d].kind", i), s.Kind)
		}
	}

	for i, col := range c.Colliders {
		switch col.Kind {
		case "plane":
			if col.Normal == [3]float64{} {
				return bad(fmt.Sprintf("colliders[%d].normal", i), col.Normal)
			}
		case "sphere":
			if col.Radius <= 0 {
				return bad(fmt.Sprintf("colliders[%d].radius", i), col.Radius)
			}
		default:
			return bad(fmt.Sprintf("colliders[%d].kind", i), col.Kind)
		}
		if col.Friction < 0 {
			return bad(fmt.Sprintf("colliders[%d].friction", i), col.Friction)
		}
	}

	if c.Run.Workers < 0 {
		return bad("run.workers", c.Run.Workers)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	e, nu := c.Material.YoungsModulus, c.Material.PoissonsRatio
	c.Derived.Mu0 = e / (2 * (1 + nu))
	c.Derived.Lambda0 = e * nu / ((1 + nu) * (1 - 2*nu))

	c.Derived.InvSpacing = 1 / c.Grid.Spacing
	c.Derived.NodeCount = c.Grid.Size[0] * c.Grid.Size[1] * c.Grid.Size[2]
	for a := 0; a < 3; a++ {
		c.Derived.Extent[a] = float64(c.Grid.Size[a]-1) * c.Grid.Spacing
	}

	s := c.Scene.ParticleSpacing
	c.Derived.ParticleMass = c.Material.Density * s * s * s

	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 100
	}
	if c.Telemetry.LogInterval < 1 {
		c.Telemetry.LogInterval = 100
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
