package ballpit

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidBody is returned when a body cannot take part in a simulation.
var ErrInvalidBody = errors.New("ballpit: invalid body")

// A Body is a circular rigid body.
type Body struct {
	ID     uint32     // assigned by Simulation.Add
	Pos    mgl64.Vec2 // center position
	Vel    mgl64.Vec2 // velocity per unit time
	Radius float64    // never changes after creation
	Mass   float64    // never changes after creation
	Color  [3]float32 // RGB display color, no physical meaning
}

func (b Body) validate() error {
	if !(b.Radius > 0) {
		return fmt.Errorf("%w: radius %g", ErrInvalidBody, b.Radius)
	}
	if !(b.Mass > 0) {
		return fmt.Errorf("%w: mass %g", ErrInvalidBody, b.Mass)
	}
	return nil
}

// Integrate advances the body by dt under constant acceleration g
// with semi-implicit Euler: the new velocity moves the body.
func (b *Body) Integrate(g mgl64.Vec2, dt float64) {
	b.Vel = b.Vel.Add(g.Mul(dt))
	b.Pos = b.Pos.Add(b.Vel.Mul(dt))
}

// Contain pushes the body back inside bounds and reflects the velocity
// component normal to each wall it crossed, scaled by e.
// It returns true if any wall was hit.
func (b *Body) Contain(bounds Bounds, e float64) bool {
	hit := false
	// bottom
	if b.Pos[1]+b.Radius > bounds.Height {
		b.Pos[1] = bounds.Height - b.Radius
		b.Vel[1] *= -e
		hit = true
	}
	// right
	if b.Pos[0]+b.Radius > bounds.Width {
		b.Pos[0] = bounds.Width - b.Radius
		b.Vel[0] *= -e
		hit = true
	}
	// left
	if b.Pos[0]-b.Radius < 0 {
		b.Pos[0] = b.Radius
		b.Vel[0] *= -e
		hit = true
	}
	// top
	if b.Pos[1]-b.Radius < 0 {
		b.Pos[1] = b.Radius
		b.Vel[1] *= -e
		hit = true
	}
	return hit
}

// SpawnRange describes the distribution of randomly spawned bodies.
type SpawnRange struct {
	MinRadius float64 // inclusive
	MaxRadius float64 // exclusive
	MaxSpeed  float64 // per axis, velocity is uniform in [-MaxSpeed, MaxSpeed)
	Mass      float64
}

// DefaultSpawn is the spawn distribution of the reference behavior.
var DefaultSpawn = SpawnRange{
	MinRadius: 10,
	MaxRadius: 20,
	MaxSpeed:  15,
	Mass:      1,
}

// Validate reports whether bodies can be drawn from r.
func (r SpawnRange) Validate() error {
	switch {
	case !(r.MinRadius > 0):
		return fmt.Errorf("%w: min radius %g", ErrInvalidBody, r.MinRadius)
	case r.MaxRadius < r.MinRadius:
		return fmt.Errorf("%w: max radius %g below min radius %g", ErrInvalidBody, r.MaxRadius, r.MinRadius)
	case !(r.Mass > 0):
		return fmt.Errorf("%w: mass %g", ErrInvalidBody, r.Mass)
	case r.MaxSpeed < 0:
		return fmt.Errorf("%w: max speed %g", ErrInvalidBody, r.MaxSpeed)
	}
	return nil
}

// Spawn adds n random bodies anywhere in the arena.
// Bodies may start overlapping each other or the walls; the first step sorts that out.
func (s *Simulation) Spawn(n int, r SpawnRange, rng *rand.Rand) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for range n {
		b := Body{
			Pos: mgl64.Vec2{
				rng.Float64() * s.Bounds.Width,
				rng.Float64() * s.Bounds.Height,
			},
			Vel: mgl64.Vec2{
				r.MaxSpeed * (2*rng.Float64() - 1),
				r.MaxSpeed * (2*rng.Float64() - 1),
			},
			Radius: r.MinRadius + rng.Float64()*(r.MaxRadius-r.MinRadius),
			Mass:   r.Mass,
			Color:  [3]float32{rng.Float32(), rng.Float32(), rng.Float32()},
		}
		if _, err := s.Add(b); err != nil {
			return err
		}
	}
	return nil
}
