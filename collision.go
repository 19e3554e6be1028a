package ballpit

// PairSet records unordered pairs of body indices.
type PairSet map[uint64]struct{}

// pairKey packs the sorted indices of a pair into a single key.
func pairKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

// Add records the pair (a, b) and returns false if it was already present.
func (ps PairSet) Add(a, b uint32) bool {
	k := pairKey(a, b)
	if _, ok := ps[k]; ok {
		return false
	}
	ps[k] = struct{}{}
	return true
}

// Reset forgets all pairs.
func (ps PairSet) Reset() {
	clear(ps)
}

// Pairs calls fn(i, j) once for every unordered pair of bodies sharing at
// least one cell, with i listed before j in the first shared cell.
// Pairs are keyed by index in the slice the grid was built from, so ids
// play no part. Pairs already in seen are skipped and emitted pairs are added to it.
func (g *Grid) Pairs(seen PairSet, fn func(i, j int)) {
	for _, c := range g.order {
		cell := g.At(c)
		for a := 0; a < len(cell); a++ {
			for b := a + 1; b < len(cell); b++ {
				i, j := cell[a], cell[b]
				if !seen.Add(uint32(i), uint32(j)) {
					continue
				}
				fn(i, j)
			}
		}
	}
}

// Resolve separates two overlapping bodies and applies a collision impulse
// with restitution e along the line of centers. It reports whether they overlapped.
//
// Each body is pushed back by half the penetration regardless of mass,
// while the impulse is shared according to inverse mass.
// Coincident centers have no defined normal and are left alone.
func Resolve(a, b *Body, e float64) bool {
	d := b.Pos.Sub(a.Pos)
	dist := d.Len()
	minDist := a.Radius + b.Radius
	if dist > minDist || dist == 0 {
		return false
	}
	n := d.Mul(1 / dist)

	// positional correction
	c := n.Mul((minDist - dist) / 2)
	a.Pos = a.Pos.Sub(c)
	b.Pos = b.Pos.Add(c)

	// already separating
	vn := b.Vel.Sub(a.Vel).Dot(n)
	if vn > 0 {
		return true
	}

	j := -(1 + e) * vn / (1/a.Mass + 1/b.Mass)
	impulse := n.Mul(j)
	a.Vel = a.Vel.Sub(impulse.Mul(1 / a.Mass))
	b.Vel = b.Vel.Add(impulse.Mul(1 / b.Mass))
	return true
}
