// Package collide provides static collision bodies for the snow solver.
//
// Every body answers the same question: given a position and a velocity,
// is the point inside the body and moving further in? If so the normal
// component is removed and the tangential component is reduced by Coulomb
// friction, or the velocity is zeroed for sticky bodies.
package collide

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Surface holds the contact response of a body.
type Surface struct {
	Friction float64 // Coulomb coefficient μ
	Sticky   bool    // zero the whole velocity on contact
}

// HalfSpace is the geometry of a plane collider. Points with
// (x − Point)·Normal <= 0 are inside.
type HalfSpace struct {
	Point  r3.Vec
	Normal r3.Vec // unit outward normal
}

// Contact reports whether pos is inside and the outward normal there.
func (h HalfSpace) Contact(pos r3.Vec) (r3.Vec, bool) {
	return h.Normal, r3.Dot(r3.Sub(pos, h.Point), h.Normal) <= 0
}

// Ball is the geometry of a solid sphere collider.
type Ball struct {
	Center r3.Vec
	Radius float64
}

// Contact reports whether pos is inside and the outward normal there. The
// center itself gets +z.
func (b Ball) Contact(pos r3.Vec) (r3.Vec, bool) {
	d := r3.Sub(pos, b.Center)
	dist := r3.Norm(d)
	if dist > b.Radius {
		return r3.Vec{}, false
	}
	if dist == 0 {
		return r3.Vec{Z: 1}, true
	}
	return r3.Scale(1/dist, d), true
}

// Plane is a half-space collider.
type Plane struct {
	HalfSpace
	Surface
}

// NewPlane returns a plane through point with the given normal, which need
// not be normalized.
func NewPlane(point, normal r3.Vec, s Surface) Plane {
	return Plane{HalfSpace: HalfSpace{Point: point, Normal: r3.Unit(normal)}, Surface: s}
}

// Collide implements sim.Collider.
func (p Plane) Collide(pos r3.Vec, vel *r3.Vec) {
	if n, ok := p.Contact(pos); ok {
		respond(n, p.Surface, vel)
	}
}

// Sphere is a solid ball collider.
type Sphere struct {
	Ball
	Surface
}

// NewSphere returns a ball collider.
func NewSphere(center r3.Vec, radius float64, s Surface) Sphere {
	return Sphere{Ball: Ball{Center: center, Radius: radius}, Surface: s}
}

// Collide implements sim.Collider.
func (s Sphere) Collide(pos r3.Vec, vel *r3.Vec) {
	if n, ok := s.Contact(pos); ok {
		respond(n, s.Surface, vel)
	}
}

// respond applies the contact response against a static body with outward
// normal n. Separating velocities are left alone.
func respond(n r3.Vec, s Surface, vel *r3.Vec) {
	vn := r3.Dot(*vel, n)
	if vn >= 0 {
		return
	}
	if s.Sticky {
		*vel = r3.Vec{}
		return
	}

	vt := r3.Sub(*vel, r3.Scale(vn, n))
	t := r3.Norm(vt)
	if t <= -s.Friction*vn {
		*vel = r3.Vec{}
		return
	}
	*vel = r3.Scale(1+s.Friction*vn/t, vt)
}

// Func adapts a function to a collider.
type Func func(pos r3.Vec, vel *r3.Vec)

// Collide calls f(pos, vel).
func (f Func) Collide(pos r3.Vec, vel *r3.Vec) { f(pos, vel) }

// finite reports whether every component of v is finite.
func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}
