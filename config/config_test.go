package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.02, cfg.Grid.Spacing)
	assert.Equal(t, [3]int{50, 50, 50}, cfg.Grid.Size)
	assert.Equal(t, 5e-4, cfg.Time.DT)
	assert.Equal(t, 1.4e5, cfg.Material.YoungsModulus)
	assert.Equal(t, 0.95, cfg.Integration.FlipBlend)
	assert.Equal(t, 0.0, cfg.Integration.ImplicitRatio)
	assert.Equal(t, 500, cfg.Integration.MaxIterations)
	assert.Equal(t, 1e-10, cfg.Integration.Tolerance)
	assert.Equal(t, [3]float64{0, 0, -9.8}, cfg.Gravity)
	require.Len(t, cfg.Scene.Shapes, 1)
	assert.Equal(t, "sphere", cfg.Scene.Shapes[0].Kind)
	require.Len(t, cfg.Colliders, 1)

	assert.InDelta(t, 1.4e5/2.4, cfg.Derived.Mu0, 1e-9)
	assert.InDelta(t, 1.4e5*0.2/(1.2*0.6), cfg.Derived.Lambda0, 1e-9)
	assert.InDelta(t, 50, cfg.Derived.InvSpacing, 1e-12)
	assert.Equal(t, 125000, cfg.Derived.NodeCount)
	assert.InDelta(t, 400*1e-6, cfg.Derived.ParticleMass, 1e-15)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snow.yaml")
	overlay := `
integration:
  implicit_ratio: 0.5
scene:
  shapes:
    - kind: slab
      min: [0.2, 0.45, 0.7]
      max: [0.8, 0.55, 0.9]
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Integration.ImplicitRatio)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.95, cfg.Integration.FlipBlend)
	assert.Equal(t, 500, cfg.Integration.MaxIterations)

	require.Len(t, cfg.Scene.Shapes, 1)
	assert.Equal(t, "slab", cfg.Scene.Shapes[0].Kind)
	assert.Equal(t, [3]float64{0.8, 0.55, 0.9}, cfg.Scene.Shapes[0].Max)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero spacing", func(c *Config) { c.Grid.Spacing = 0 }},
		{"empty axis", func(c *Config) { c.Grid.Size[1] = 0 }},
		{"negative dt", func(c *Config) { c.Time.DT = -1 }},
		{"incompressible", func(c *Config) { c.Material.PoissonsRatio = 0.5 }},
		{"compression above one", func(c *Config) { c.Material.CriticalCompression = 1 }},
		{"blend above one", func(c *Config) { c.Integration.FlipBlend = 1.5 }},
		{"negative beta", func(c *Config) { c.Integration.ImplicitRatio = -0.1 }},
		{"no iterations", func(c *Config) { c.Integration.MaxIterations = 0 }},
		{"unknown shape", func(c *Config) { c.Scene.Shapes[0].Kind = "cube" }},
		{"inverted slab", func(c *Config) {
			c.Scene.Shapes[0] = ShapeConfig{Kind: "slab", Min: [3]float64{1, 0, 0}, Max: [3]float64{0, 1, 1}}
		}},
		{"plane without normal", func(c *Config) { c.Colliders[0].Normal = [3]float64{} }},
		{"negative friction", func(c *Config) { c.Colliders[0].Friction = -1 }},
		{"negative workers", func(c *Config) { c.Run.Workers = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Integration.ImplicitRatio = 0.25
	cfg.Grid.Size = [3]int{10, 20, 30}

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Integration, back.Integration)
	assert.Equal(t, cfg.Grid, back.Grid)
	assert.Equal(t, cfg.Derived, back.Derived)
}

func TestInitAndCfg(t *testing.T) {
	global = nil
	assert.Panics(t, func() { Cfg() })

	MustInit("")
	assert.Equal(t, 0.02, Cfg().Grid.Spacing)
}
