package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
)

// Grid is the uniform background lattice. Nodes are stored x-major:
// index = (x·Ny + y)·Nz + z.
type Grid struct {
	H    float64
	InvH float64
	Size [3]int

	Nodes []components.GridNode
}

// NewGrid builds a lattice of size[0]×size[1]×size[2] nodes spaced h apart,
// with node (0,0,0) at the origin.
func NewGrid(h float64, size [3]int) *Grid {
	g := &Grid{
		H:     h,
		InvH:  1 / h,
		Size:  size,
		Nodes: make([]components.GridNode, size[0]*size[1]*size[2]),
	}
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				n := &g.Nodes[g.Index(x, y, z)]
				n.Index = [3]int{x, y, z}
				n.Position = r3.Vec{X: float64(x) * h, Y: float64(y) * h, Z: float64(z) * h}
			}
		}
	}
	return g
}

// Index returns the flat node index of lattice point (x, y, z).
// The caller must check Valid first.
func (g *Grid) Index(x, y, z int) int {
	return (x*g.Size[1]+y)*g.Size[2] + z
}

// Valid reports whether (x, y, z) lies inside the lattice.
func (g *Grid) Valid(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 &&
		x < g.Size[0] && y < g.Size[1] && z < g.Size[2]
}

// Node returns the node at lattice point (x, y, z), or nil outside the lattice.
func (g *Grid) Node(x, y, z int) *components.GridNode {
	if !g.Valid(x, y, z) {
		return nil
	}
	return &g.Nodes[g.Index(x, y, z)]
}

// NodeCount returns the number of lattice nodes.
func (g *Grid) NodeCount() int {
	return len(g.Nodes)
}

// Reset clears the per-tick accumulators. Density0 is kept.
func (g *Grid) Reset() {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Mass = 0
		n.Velocity = r3.Vec{}
		n.VelocityStar = r3.Vec{}
		n.Force = r3.Vec{}
	}
}

// TotalMass returns the sum of node masses.
func (g *Grid) TotalMass() float64 {
	var m float64
	for i := range g.Nodes {
		m += g.Nodes[i].Mass
	}
	return m
}

// Visit calls fn for every in-lattice node covered by the stencil, with the
// node's flat index, weight and weight gradient.
func (g *Grid) Visit(s *Stencil, fn func(i int, w float64, grad r3.Vec)) {
	for a := 0; a < StencilWidth; a++ {
		for b := 0; b < StencilWidth; b++ {
			for c := 0; c < StencilWidth; c++ {
				x, y, z := s.Node(a, b, c)
				if !g.Valid(x, y, z) {
					continue
				}
				fn(g.Index(x, y, z), s.Weight(a, b, c), s.Gradient(a, b, c))
			}
		}
	}
}

// PackVelocityStar copies every node's VelocityStar into dst as consecutive
// xyz triples. dst must hold 3·NodeCount values.
func (g *Grid) PackVelocityStar(dst []float64) {
	for i := range g.Nodes {
		v := g.Nodes[i].VelocityStar
		dst[3*i], dst[3*i+1], dst[3*i+2] = v.X, v.Y, v.Z
	}
}

// UnpackVelocityNext stores consecutive xyz triples from src as each node's
// VelocityNext.
func (g *Grid) UnpackVelocityNext(src []float64) {
	for i := range g.Nodes {
		g.Nodes[i].VelocityNext = r3.Vec{X: src[3*i], Y: src[3*i+1], Z: src[3*i+2]}
	}
}

// CommitExplicit makes the explicit velocities the next-tick velocities.
func (g *Grid) CommitExplicit() {
	for i := range g.Nodes {
		g.Nodes[i].VelocityNext = g.Nodes[i].VelocityStar
	}
}
