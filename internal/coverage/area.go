package coverage

import (
	"fmt"
	"math"
)

// CoveredArea samples the domain on the unit grid 0..Size and returns the number
// of grid points within Radius of at least one sensor. overlaps counts every time
// an already covered point is covered again by another sensor.
//
// Only the bounding box of each sensor is visited. CoveredArea does not read or
// modify the committed placement and is safe for concurrent use.
func (m *Model) CoveredArea(p Placement) (area, overlaps int, err error) {
	for i, pos := range p {
		if !finite(pos.X) || !finite(pos.Y) {
			return 0, 0, fmt.Errorf("%w: sensor %d at (%v, %v)", ErrInvalidPlacement, i, pos.X, pos.Y)
		}
	}

	bufp := m.buffers.Get().(*[]bool)
	covered := *bufp
	clear(covered)
	defer m.buffers.Put(bufp)

	last := m.side - 1
	r2 := m.Radius * m.Radius
	for _, pos := range p {
		x0 := clampIndex(int(math.Floor(pos.X-m.Radius)), last)
		x1 := clampIndex(int(math.Floor(pos.X+m.Radius)), last)
		y0 := clampIndex(int(math.Floor(pos.Y-m.Radius)), last)
		y1 := clampIndex(int(math.Floor(pos.Y+m.Radius)), last)

		for i := x0; i <= x1; i++ {
			dx := float64(i) - pos.X
			for j := y0; j <= y1; j++ {
				dy := float64(j) - pos.Y
				if dx*dx+dy*dy > r2 {
					continue
				}
				idx := i*m.side + j
				if covered[idx] {
					overlaps++
					continue
				}
				covered[idx] = true
				area++
			}
		}
	}
	return area, overlaps, nil
}

func clampIndex(v, last int) int {
	if v < 0 {
		return 0
	}
	if v > last {
		return last
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
