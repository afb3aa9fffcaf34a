package sim

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/snow/systems"
)

var (
	// ErrDegenerateDeformation indicates a particle whose elastic
	// deformation has det(Fe) <= 0 or non-finite entries.
	ErrDegenerateDeformation = systems.ErrDegenerateDeformation

	// ErrInvalidParams indicates a parameter outside its valid range.
	ErrInvalidParams = errors.New("snow: invalid parameters")

	// ErrStateFormat indicates a state file that is truncated or describes
	// an impossible solver.
	ErrStateFormat = errors.New("snow: malformed state file")
)

// BlowupError reports the tick and particle at which the simulation blew up.
// The particle set is left as it was when the failure was detected and
// must not be stepped further.
type BlowupError struct {
	Tick     int
	Phase    string
	Particle int
	Det      float64
	Wrapped  error
}

func (e *BlowupError) Error() string {
	return fmt.Sprintf("snow: blow-up at tick %d during %s: %v", e.Tick, e.Phase, e.Wrapped)
}

func (e *BlowupError) Unwrap() error {
	return e.Wrapped
}

// blowup wraps a systems error with tick context.
func blowup(tick int, phase string, err error) error {
	be := &BlowupError{Tick: tick, Phase: phase, Particle: -1, Wrapped: err}
	var de *systems.DeformationError
	if errors.As(err, &de) {
		be.Particle = de.Particle
		be.Det = de.Det
	}
	return be
}
