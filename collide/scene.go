package collide

import (
	"errors"
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidBody is returned when a collider has non-finite geometry, a
// zero normal, a non-positive radius or negative friction.
var ErrInvalidBody = errors.New("collide: invalid body")

// Scene is a set of static bodies stored as ECS entities. Planes carry
// HalfSpace and Surface components; spheres carry Ball and Surface.
//
// Collide reads a flat copy of the bodies taken after every Add or Remove,
// so it is safe to call from many goroutines as long as the scene is not
// modified at the same time.
type Scene struct {
	world *ecs.World

	planeMap    *ecs.Map2[HalfSpace, Surface]
	sphereMap   *ecs.Map2[Ball, Surface]
	planeFilter *ecs.Filter2[HalfSpace, Surface]
	ballFilter  *ecs.Filter2[Ball, Surface]
	surfaceMap  *ecs.Map1[Surface]

	planes  []Plane
	spheres []Sphere
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	world := ecs.NewWorld()
	return &Scene{
		world:       world,
		planeMap:    ecs.NewMap2[HalfSpace, Surface](world),
		sphereMap:   ecs.NewMap2[Ball, Surface](world),
		planeFilter: ecs.NewFilter2[HalfSpace, Surface](world),
		ballFilter:  ecs.NewFilter2[Ball, Surface](world),
		surfaceMap:  ecs.NewMap1[Surface](world),
	}
}

// AddPlane adds a half-space through point with outward normal.
func (s *Scene) AddPlane(point, normal r3.Vec, surf Surface) (ecs.Entity, error) {
	if !finite(point) || !finite(normal) || r3.Norm2(normal) == 0 {
		return ecs.Entity{}, fmt.Errorf("%w: plane point %v normal %v", ErrInvalidBody, point, normal)
	}
	if err := checkSurface(surf); err != nil {
		return ecs.Entity{}, err
	}
	hs := HalfSpace{Point: point, Normal: r3.Unit(normal)}
	e := s.planeMap.NewEntity(&hs, &surf)
	s.refresh()
	return e, nil
}

// AddSphere adds a solid ball.
func (s *Scene) AddSphere(center r3.Vec, radius float64, surf Surface) (ecs.Entity, error) {
	if !finite(center) || !(radius > 0) {
		return ecs.Entity{}, fmt.Errorf("%w: sphere center %v radius %v", ErrInvalidBody, center, radius)
	}
	if err := checkSurface(surf); err != nil {
		return ecs.Entity{}, err
	}
	b := Ball{Center: center, Radius: radius}
	e := s.sphereMap.NewEntity(&b, &surf)
	s.refresh()
	return e, nil
}

// SetSurface changes the contact response of a body. It reports false if
// the body is not in the scene.
func (s *Scene) SetSurface(e ecs.Entity, surf Surface) bool {
	if !s.world.Alive(e) || checkSurface(surf) != nil {
		return false
	}
	*s.surfaceMap.Get(e) = surf
	s.refresh()
	return true
}

// Remove deletes a body. It reports false if the body is not in the scene.
func (s *Scene) Remove(e ecs.Entity) bool {
	if !s.world.Alive(e) {
		return false
	}
	s.world.RemoveEntity(e)
	s.refresh()
	return true
}

// Len returns the number of bodies.
func (s *Scene) Len() int {
	return len(s.planes) + len(s.spheres)
}

// Collide applies every body in turn, planes before spheres.
func (s *Scene) Collide(pos r3.Vec, vel *r3.Vec) {
	for i := range s.planes {
		s.planes[i].Collide(pos, vel)
	}
	for i := range s.spheres {
		s.spheres[i].Collide(pos, vel)
	}
}

// Planes returns the current plane bodies.
func (s *Scene) Planes() []Plane { return s.planes }

// Spheres returns the current sphere bodies.
func (s *Scene) Spheres() []Sphere { return s.spheres }

// refresh rebuilds the flat body lists from the world.
func (s *Scene) refresh() {
	s.planes = make([]Plane, 0, len(s.planes)+1)
	query := s.planeFilter.Query()
	for query.Next() {
		hs, surf := query.Get()
		s.planes = append(s.planes, Plane{HalfSpace: *hs, Surface: *surf})
	}

	s.spheres = make([]Sphere, 0, len(s.spheres)+1)
	bq := s.ballFilter.Query()
	for bq.Next() {
		b, surf := bq.Get()
		s.spheres = append(s.spheres, Sphere{Ball: *b, Surface: *surf})
	}
}

func checkSurface(surf Surface) error {
	if !(surf.Friction >= 0) {
		return fmt.Errorf("%w: friction %v", ErrInvalidBody, surf.Friction)
	}
	return nil
}
