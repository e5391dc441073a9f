package coverage

import (
	"math"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// Neighbors moves each sensor by one NeighborStep along each axis, in the order
// (+step,0), (-step,0), (0,+step), (0,-step). A candidate is kept only when the
// moved sensor stays in bounds and overlaps no other sensor. The result may be empty.
func (m *Model) Neighbors(p Placement) []Placement {
	step := m.NeighborStep
	moves := [4]Position{{X: step}, {X: -step}, {Y: step}, {Y: -step}}

	neighbors := make([]Placement, 0, len(p)*len(moves))
	for i, pos := range p {
		for _, d := range moves {
			moved := Position{X: pos.X + d.X, Y: pos.Y + d.Y}
			if !m.WithinBounds(moved) || m.overlapsOthers(p, moved, i) {
				continue
			}
			candidate := p.Clone()
			candidate[i] = moved
			neighbors = append(neighbors, candidate)
		}
	}
	return neighbors
}

// Perturb moves the sensor at index by independent integer offsets drawn from
// [-spread, spread] and clips the result to [Radius, Size-Radius]. ok is false
// when the moved sensor would overlap another one; the candidate is still returned.
func (m *Model) Perturb(p Placement, index, spread int, rng *utils.RandSource) (candidate Placement, ok bool) {
	candidate = p.Clone()
	pos := candidate[index]
	pos.X = utils.ClampFloat64(pos.X+float64(rng.IntRange(-spread, spread)), m.Radius, m.Size-m.Radius)
	pos.Y = utils.ClampFloat64(pos.Y+float64(rng.IntRange(-spread, spread)), m.Radius, m.Size-m.Radius)
	candidate[index] = pos
	return candidate, !m.overlapsOthers(candidate, pos, index)
}

// placementBounds returns the integer range that keeps a whole disk inside the domain
func (m *Model) placementBounds() (lo, hi int) {
	return int(math.Ceil(m.Radius)), int(math.Floor(m.Size - m.Radius))
}
