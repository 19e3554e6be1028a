package stream

import (
	"math"

	"github.com/PrincetonUniversity/ballpit"
)

// BodyState is the replicated state of one body. Coordinates are rounded
// to a tenth of a unit to keep frames small.
type BodyState struct {
	ID    uint32   `msgpack:"id"`
	X     float64  `msgpack:"x"`
	Y     float64  `msgpack:"y"`
	R     float64  `msgpack:"r"`
	Color [3]uint8 `msgpack:"c"`
}

// Frame is a snapshot of a simulation sent to every client.
type Frame struct {
	Tick     uint64      `msgpack:"tick"`
	Width    float64     `msgpack:"w"`
	Height   float64     `msgpack:"h"`
	CellSize float64     `msgpack:"cell"`
	Contacts int         `msgpack:"contacts"`
	Bodies   []BodyState `msgpack:"bodies"`
}

// NewFrame copies the current state of s into a frame.
// The frame shares no memory with the simulation.
func NewFrame(s *ballpit.Simulation, tick uint64) Frame {
	f := Frame{
		Tick:     tick,
		Width:    s.Bounds.Width,
		Height:   s.Bounds.Height,
		CellSize: s.Params.CellSize,
		Contacts: s.Stats.Contacts,
		Bodies:   make([]BodyState, len(s.Bodies)),
	}
	for i, b := range s.Bodies {
		f.Bodies[i] = BodyState{
			ID: b.ID,
			X:  round1(b.Pos[0]),
			Y:  round1(b.Pos[1]),
			R:  round1(b.Radius),
			Color: [3]uint8{
				uint8(255 * clamp01(b.Color[0])),
				uint8(255 * clamp01(b.Color[1])),
				uint8(255 * clamp01(b.Color[2])),
			},
		}
	}
	return f
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func clamp01(x float32) float32 {
	return min(max(x, 0), 1)
}
