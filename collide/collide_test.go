package collide

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/config"
	"github.com/pthm-cable/snow/sim"
)

var (
	_ sim.Collider = Plane{}
	_ sim.Collider = Sphere{}
	_ sim.Collider = (*Scene)(nil)
	_ sim.Collider = Func(nil)
)

func assertVec(t *testing.T, want, got r3.Vec, msg string) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-12, msg)
	assert.InDelta(t, want.Y, got.Y, 1e-12, msg)
	assert.InDelta(t, want.Z, got.Z, 1e-12, msg)
}

func TestPlaneResponse(t *testing.T) {
	ground := r3.Vec{Z: -0.01}
	tests := []struct {
		name string
		surf Surface
		pos  r3.Vec
		vel  r3.Vec
		want r3.Vec
	}{
		{"frictionless", Surface{}, ground, r3.Vec{X: 1, Z: -2}, r3.Vec{X: 1}},
		{"sliding", Surface{Friction: 0.3}, ground, r3.Vec{X: 1, Z: -2}, r3.Vec{X: 0.4}},
		{"static friction", Surface{Friction: 0.6}, ground, r3.Vec{X: 1, Z: -2}, r3.Vec{}},
		{"sticky", Surface{Sticky: true}, ground, r3.Vec{X: 1, Z: -2}, r3.Vec{}},
		{"separating", Surface{Friction: 1}, ground, r3.Vec{X: 1, Z: 2}, r3.Vec{X: 1, Z: 2}},
		{"outside", Surface{Sticky: true}, r3.Vec{Z: 0.1}, r3.Vec{X: 1, Z: -2}, r3.Vec{X: 1, Z: -2}},
		{"on the surface", Surface{}, r3.Vec{X: 3}, r3.Vec{Z: -1}, r3.Vec{}},
	}

	p := NewPlane(r3.Vec{}, r3.Vec{Z: 5}, Surface{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Surface = tt.surf
			v := tt.vel
			p.Collide(tt.pos, &v)
			assertVec(t, tt.want, v, tt.name)
		})
	}
}

func TestPlaneNormalized(t *testing.T) {
	p := NewPlane(r3.Vec{X: 1}, r3.Vec{X: -3}, Surface{})
	assert.InDelta(t, 1, r3.Norm(p.Normal), 1e-15)

	v := r3.Vec{X: 2, Y: 1}
	p.Collide(r3.Vec{X: 1.5}, &v)
	assertVec(t, r3.Vec{Y: 1}, v, "wall at x=1 facing -x")
}

func TestSphereResponse(t *testing.T) {
	s := NewSphere(r3.Vec{}, 1, Surface{})

	v := r3.Vec{X: -1, Y: 0.2}
	s.Collide(r3.Vec{X: 0.5}, &v)
	assertVec(t, r3.Vec{Y: 0.2}, v, "normal component removed")

	v = r3.Vec{X: -1}
	s.Collide(r3.Vec{X: 1.5}, &v)
	assertVec(t, r3.Vec{X: -1}, v, "outside")

	v = r3.Vec{Z: -1}
	s.Collide(r3.Vec{}, &v)
	assertVec(t, r3.Vec{}, v, "center pushes along +z")
}

func TestSceneAddRemove(t *testing.T) {
	s := NewScene()
	assert.Equal(t, 0, s.Len())

	ground, err := s.AddPlane(r3.Vec{}, r3.Vec{Z: 2}, Surface{Friction: 0.3})
	require.NoError(t, err)
	ball, err := s.AddSphere(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 0.1, Surface{Sticky: true})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	require.Len(t, s.Planes(), 1)
	assert.Equal(t, r3.Vec{Z: 1}, s.Planes()[0].Normal)

	v := r3.Vec{X: 1, Z: -2}
	s.Collide(r3.Vec{Z: -0.01}, &v)
	assertVec(t, r3.Vec{X: 0.4}, v, "ground")

	v = r3.Vec{X: 1}
	s.Collide(r3.Vec{X: 0.45, Y: 0.5, Z: 0.5}, &v)
	assertVec(t, r3.Vec{}, v, "sticky ball")

	assert.True(t, s.SetSurface(ground, Surface{}))
	v = r3.Vec{X: 1, Z: -2}
	s.Collide(r3.Vec{Z: -0.01}, &v)
	assertVec(t, r3.Vec{X: 1}, v, "frictionless ground")

	assert.True(t, s.Remove(ball))
	assert.False(t, s.Remove(ball), "already removed")
	assert.False(t, s.SetSurface(ball, Surface{}))
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Spheres())

	v = r3.Vec{X: 1}
	s.Collide(r3.Vec{X: 0.45, Y: 0.5, Z: 0.5}, &v)
	assertVec(t, r3.Vec{X: 1}, v, "ball gone")
}

func TestSceneRejectsInvalidBodies(t *testing.T) {
	s := NewScene()
	_, err := s.AddPlane(r3.Vec{}, r3.Vec{}, Surface{})
	assert.ErrorIs(t, err, ErrInvalidBody)
	_, err = s.AddSphere(r3.Vec{}, 0, Surface{})
	assert.ErrorIs(t, err, ErrInvalidBody)
	_, err = s.AddSphere(r3.Vec{}, 1, Surface{Friction: -1})
	assert.ErrorIs(t, err, ErrInvalidBody)
	assert.Equal(t, 0, s.Len())
}

func TestSceneConcurrentCollide(t *testing.T) {
	s := NewScene()
	_, err := s.AddPlane(r3.Vec{}, r3.Vec{Z: 1}, Surface{Friction: 0.3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]r3.Vec, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var v r3.Vec
			for j := 0; j < 100; j++ {
				v = r3.Vec{X: 1, Z: -2}
				s.Collide(r3.Vec{Z: -0.01}, &v)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()
	for _, v := range results {
		assertVec(t, r3.Vec{X: 0.4}, v, "goroutine result")
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	s, err := FromConfig(cfg.Colliders)
	require.NoError(t, err)
	require.Len(t, s.Planes(), 1)
	assert.InDelta(t, 0.06, s.Planes()[0].Point.Z, 1e-15)
	assert.InDelta(t, 0.3, s.Planes()[0].Friction, 1e-15)

	_, err = FromConfig([]config.ColliderConfig{{Kind: "box"}})
	assert.ErrorIs(t, err, ErrInvalidBody)
}
