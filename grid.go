package ballpit

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// A Cell identifies a square of the grid by its integer coordinates.
type Cell struct {
	X int
	Y int
}

// Grid is a uniform spatial hash mapping cells to the bodies overlapping them.
//
// A body belongs to every cell its bounding square touches, so a body
// can be listed in several cells, but at most once per cell.
// Cells store indices into the body slice the grid was built from.
type Grid struct {
	size  float64
	cells map[Cell][]int
	order []Cell // occupied cells in first-insertion order
}

// NewGrid returns an empty grid with square cells of the given side.
func NewGrid(size float64) *Grid {
	return &Grid{
		size:  size,
		cells: make(map[Cell][]int),
	}
}

// CellSize returns the side of a cell.
func (g *Grid) CellSize() float64 {
	return g.size
}

// CellOf returns the cell containing point p.
func (g *Grid) CellOf(p mgl64.Vec2) Cell {
	return Cell{
		X: int(math.Floor(p[0] / g.size)),
		Y: int(math.Floor(p[1] / g.size)),
	}
}

// Span returns the inclusive range of cells overlapped by the bounding
// square of a circle of radius r centered at p.
func (g *Grid) Span(p mgl64.Vec2, r float64) (lo, hi Cell) {
	return g.CellOf(mgl64.Vec2{p[0] - r, p[1] - r}), g.CellOf(mgl64.Vec2{p[0] + r, p[1] + r})
}

// Clear empties the grid, keeping allocated cell storage for reuse.
func (g *Grid) Clear() {
	for _, c := range g.order {
		g.cells[c] = g.cells[c][:0]
	}
	g.order = g.order[:0]
}

// Insert adds body index i to every cell overlapped by the circle (p, r).
func (g *Grid) Insert(i int, p mgl64.Vec2, r float64) {
	lo, hi := g.Span(p, r)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			c := Cell{x, y}
			list := g.cells[c]
			if len(list) == 0 {
				g.order = append(g.order, c)
			}
			g.cells[c] = append(list, i)
		}
	}
}

// Rebuild replaces the contents of the grid with the given bodies.
func (g *Grid) Rebuild(bodies []Body) {
	g.Clear()
	for i := range bodies {
		g.Insert(i, bodies[i].Pos, bodies[i].Radius)
	}
}

// Len returns the number of occupied cells.
func (g *Grid) Len() int {
	return len(g.order)
}

// At returns the indices listed in cell c. The slice is owned by the grid.
func (g *Grid) At(c Cell) []int {
	return g.cells[c]
}

// Each calls fn for every occupied cell in insertion order.
// The members slice is owned by the grid and only valid until the next rebuild.
func (g *Grid) Each(fn func(c Cell, members []int)) {
	for _, c := range g.order {
		fn(c, g.cells[c])
	}
}
