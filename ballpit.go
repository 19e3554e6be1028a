// Package ballpit simulates circular rigid bodies bouncing under gravity.
//
// A fixed number of circular bodies move inside a rectangular arena.
// Bodies bounce off the walls and off each other. Candidate pairs are
// found with a uniform grid rebuilt every step, and overlapping pairs are
// separated and given an impulse along the contact normal.
package ballpit

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Params contains the physical constants of a simulation.
// They are fixed for the lifetime of a Simulation.
type Params struct {
	// Gravity is the constant acceleration applied to every body.
	// The y axis points down, as on screen.
	Gravity mgl64.Vec2

	// CellSize is the side of a grid cell. It works best when it is
	// somewhat larger than the largest body diameter.
	CellSize float64

	// WallRestitution is the fraction of normal speed kept when bouncing off a wall.
	WallRestitution float64

	// Restitution is the fraction of relative normal speed kept when two bodies collide.
	Restitution float64
}

// DefaultParams are the parameters of the reference behavior.
var DefaultParams = Params{
	Gravity:         mgl64.Vec2{0, 9.81},
	CellSize:        55,
	WallRestitution: 0.9,
	Restitution:     0.8,
}

// Validate reports whether the parameters describe a usable simulation.
func (p Params) Validate() error {
	switch {
	case !(p.CellSize > 0):
		return fmt.Errorf("ballpit: cell size must be positive, got %g", p.CellSize)
	case p.WallRestitution < 0 || p.WallRestitution > 1:
		return fmt.Errorf("ballpit: wall restitution must be in [0, 1], got %g", p.WallRestitution)
	case p.Restitution < 0 || p.Restitution > 1:
		return fmt.Errorf("ballpit: restitution must be in [0, 1], got %g", p.Restitution)
	}
	return nil
}

// Bounds is the size of the arena. The arena spans [0, Width] × [0, Height].
type Bounds struct {
	Width  float64
	Height float64
}

// Stats counts what happened during the last step.
type Stats struct {
	Cells    int // occupied grid cells
	Pairs    int // candidate pairs handed to the resolver
	Contacts int // candidate pairs that actually overlapped
	WallHits int // bodies that touched at least one wall
}

// A Simulation contains all the state and parameters of a simulation.
// It is not safe for concurrent use.
type Simulation struct {
	Bodies []Body
	Bounds Bounds
	Params Params

	// Stats describes the last call to Step.
	Stats Stats

	grid   *Grid
	seen   PairSet
	nextID uint32
}

// New returns an empty simulation.
func New(bounds Bounds, params Params) *Simulation {
	return &Simulation{
		Bounds: bounds,
		Params: params,
		grid:   NewGrid(params.CellSize),
		seen:   make(PairSet),
	}
}

// Add appends a body to the simulation and returns its id.
// Ids are assigned sequentially and never reused until Reset.
func (s *Simulation) Add(b Body) (uint32, error) {
	if err := b.validate(); err != nil {
		return 0, err
	}
	b.ID = s.nextID
	s.nextID++
	s.Bodies = append(s.Bodies, b)
	return b.ID, nil
}

// Reset removes all bodies and restarts id assignment.
func (s *Simulation) Reset() {
	s.Bodies = s.Bodies[:0]
	s.nextID = 0
	s.Stats = Stats{}
	s.Grid().Clear()
}

// Grid returns the spatial index built during the last step.
func (s *Simulation) Grid() *Grid {
	if s.grid == nil {
		s.grid = NewGrid(s.Params.CellSize)
	}
	return s.grid
}

// Step runs a single simulation step of duration dt.
func (s *Simulation) Step(dt float64) {
	if s.seen == nil {
		s.seen = make(PairSet)
	}
	s.Stats = Stats{}

	// move, then keep everyone inside the arena
	for i := range s.Bodies {
		b := &s.Bodies[i]
		b.Integrate(s.Params.Gravity, dt)
		if b.Contain(s.Bounds, s.Params.WallRestitution) {
			s.Stats.WallHits++
		}
	}

	// index post-integration positions and resolve each pair once
	g := s.Grid()
	g.Rebuild(s.Bodies)
	s.Stats.Cells = g.Len()
	s.seen.Reset()
	g.Pairs(s.seen, func(i, j int) {
		s.Stats.Pairs++
		if Resolve(&s.Bodies[i], &s.Bodies[j], s.Params.Restitution) {
			s.Stats.Contacts++
		}
	})
}

// Advance runs subSteps steps that together last frameDt.
// Stats accumulate over the sub-steps.
func (s *Simulation) Advance(frameDt float64, subSteps int) {
	if subSteps < 1 {
		subSteps = 1
	}
	dt := frameDt / float64(subSteps)
	var total Stats
	for range subSteps {
		s.Step(dt)
		total.Pairs += s.Stats.Pairs
		total.Contacts += s.Stats.Contacts
		total.WallHits += s.Stats.WallHits
	}
	total.Cells = s.Stats.Cells
	s.Stats = total
}

// Attract pulls every body toward target by adding a velocity of the given
// magnitude pointing at it. Bodies sitting exactly on target are left alone.
func (s *Simulation) Attract(target mgl64.Vec2, strength float64) {
	for i := range s.Bodies {
		d := target.Sub(s.Bodies[i].Pos)
		l := d.Len()
		if l == 0 {
			continue
		}
		s.Bodies[i].Vel = s.Bodies[i].Vel.Add(d.Mul(strength / l))
	}
}

// KineticEnergy returns the total kinetic energy of all bodies.
func (s *Simulation) KineticEnergy() float64 {
	var e float64
	for _, b := range s.Bodies {
		e += 0.5 * b.Mass * b.Vel.Dot(b.Vel)
	}
	return e
}

// Step advances bodies by dt inside bounds using a throwaway index.
// Simulation.Step should be preferred when stepping repeatedly.
func Step(bodies []Body, dt float64, bounds Bounds, params Params) {
	s := Simulation{Bodies: bodies, Bounds: bounds, Params: params}
	s.Step(dt)
}
