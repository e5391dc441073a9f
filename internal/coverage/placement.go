package coverage

import (
	"fmt"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

// RandomPlacement draws uniform integer positions in [Radius, Size-Radius] and
// keeps those that do not overlap the sensors already placed, until Sensors are
// placed or PlacementAttempts draws have been made. When the budget runs out the
// shorter placement is returned together with ErrPlacementDegraded.
func (m *Model) RandomPlacement(rng *utils.RandSource) (Placement, error) {
	lo, hi := m.placementBounds()
	placement := make(Placement, 0, m.Sensors)

	for attempts := 0; len(placement) < m.Sensors && attempts < m.PlacementAttempts; attempts++ {
		pos := Position{
			X: float64(rng.IntRange(lo, hi)),
			Y: float64(rng.IntRange(lo, hi)),
		}
		if m.overlapsOthers(placement, pos, -1) {
			continue
		}
		placement = append(placement, pos)
	}

	if len(placement) < m.Sensors {
		return placement, fmt.Errorf("%w: placed %d of %d sensors in %d attempts",
			ErrPlacementDegraded, len(placement), m.Sensors, m.PlacementAttempts)
	}
	return placement, nil
}
