package sim

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/linalg"
	"github.com/pthm-cable/snow/systems"
)

// maxStateParticles bounds the particle count accepted from a state file.
const maxStateParticles = 1 << 28

// stateHeader is the fixed-layout prefix of a state file. Poisson's ratio,
// gravity and solver tolerances are not stored.
type stateHeader struct {
	YoungsModulus       float64
	CriticalCompression float64
	CriticalStretch     float64
	Hardening           float64
	Spacing             float64
	Size                [3]uint32
	_                   uint32
	Tick                uint64
	Dt                  float64
	FlipBlend           float64
	ImplicitRatio       float64
	NumParticles        uint64
}

// stateParticle is one particle record. Matrices are column-major.
type stateParticle struct {
	Position [3]float64
	Velocity [3]float64
	Mass     float64
	Volume0  float64
	Fe       [9]float64
	Fp       [9]float64
}

// WriteState writes the stored parameters and every particle in
// little-endian binary.
func (s *Simulation) WriteState(w io.Writer) error {
	p := s.params
	hdr := stateHeader{
		YoungsModulus:       p.YoungsModulus,
		CriticalCompression: p.CriticalCompression,
		CriticalStretch:     p.CriticalStretch,
		Hardening:           p.Hardening,
		Spacing:             p.Spacing,
		Size:                [3]uint32{uint32(p.Size[0]), uint32(p.Size[1]), uint32(p.Size[2])},
		Tick:                uint64(s.tick),
		Dt:                  p.Dt,
		FlipBlend:           p.FlipBlend,
		ImplicitRatio:       p.ImplicitRatio,
		NumParticles:        uint64(len(s.particles)),
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("writing state header: %w", err)
	}
	for i := range s.particles {
		rec := encodeParticle(&s.particles[i])
		if err := binary.Write(bw, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("writing particle %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// ReadState replaces the particle set, tick and stored parameters with the
// contents of r. Parameters the file does not carry keep their current
// values. The grid is rebuilt before the next tick.
//
// On error the simulation is left unchanged.
func (s *Simulation) ReadState(r io.Reader) error {
	br := bufio.NewReader(r)

	var hdr stateHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return stateError("reading header", err)
	}
	if hdr.NumParticles > maxStateParticles {
		return fmt.Errorf("%w: %d particles", ErrStateFormat, hdr.NumParticles)
	}

	p := s.params
	p.YoungsModulus = hdr.YoungsModulus
	p.CriticalCompression = hdr.CriticalCompression
	p.CriticalStretch = hdr.CriticalStretch
	p.Hardening = hdr.Hardening
	p.Spacing = hdr.Spacing
	p.Size = [3]int{int(hdr.Size[0]), int(hdr.Size[1]), int(hdr.Size[2])}
	p.Dt = hdr.Dt
	p.FlipBlend = hdr.FlipBlend
	p.ImplicitRatio = hdr.ImplicitRatio
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateFormat, err)
	}

	particles := make([]components.Particle, hdr.NumParticles)
	for i := range particles {
		var rec stateParticle
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return stateError(fmt.Sprintf("reading particle %d", i), err)
		}
		particles[i] = decodeParticle(&rec)
	}

	s.applyParams(p)
	s.particles = particles
	s.tick = int(hdr.Tick)
	s.simTime = float64(s.tick) * p.Dt
	s.gridMass = 0
	s.lastSolve = systems.SolveResult{}
	s.failed = nil
	s.dirty = true
	return nil
}

// SaveState writes the state to path, replacing any existing file.
func (s *Simulation) SaveState(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	if err := s.WriteState(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadState replaces the simulation state with the contents of path.
func (s *Simulation) LoadState(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}
	defer f.Close()
	if err := s.ReadState(f); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load creates a simulation from a state file. Parameters the file does
// not carry come from DefaultParams.
func Load(path string, opts ...Option) (*Simulation, error) {
	s, err := New(DefaultParams(), opts...)
	if err != nil {
		return nil, err
	}
	if err := s.LoadState(path); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func stateError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: truncated", ErrStateFormat, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func encodeParticle(p *components.Particle) stateParticle {
	return stateParticle{
		Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Velocity: [3]float64{p.Velocity.X, p.Velocity.Y, p.Velocity.Z},
		Mass:     p.Mass,
		Volume0:  p.Volume0,
		Fe:       p.Fe.T().Flat(),
		Fp:       p.Fp.T().Flat(),
	}
}

func decodeParticle(rec *stateParticle) components.Particle {
	pos := r3.Vec{X: rec.Position[0], Y: rec.Position[1], Z: rec.Position[2]}
	vel := r3.Vec{X: rec.Velocity[0], Y: rec.Velocity[1], Z: rec.Velocity[2]}
	p := components.NewParticle(pos, vel, rec.Mass)
	p.Volume0 = rec.Volume0
	p.Fe = linalg.FromFlat(rec.Fe).T()
	p.Fp = linalg.FromFlat(rec.Fp).T()
	return p
}
