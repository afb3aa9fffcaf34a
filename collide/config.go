package collide

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/config"
)

// FromConfig builds a scene from the configured colliders.
func FromConfig(cfgs []config.ColliderConfig) (*Scene, error) {
	s := NewScene()
	for i, c := range cfgs {
		surf := Surface{Friction: c.Friction, Sticky: c.Sticky}
		var err error
		switch c.Kind {
		case "plane":
			_, err = s.AddPlane(vec(c.Point), vec(c.Normal), surf)
		case "sphere":
			_, err = s.AddSphere(vec(c.Center), c.Radius, surf)
		default:
			err = fmt.Errorf("%w: kind %q", ErrInvalidBody, c.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("collider %d: %w", i, err)
		}
	}
	return s, nil
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
