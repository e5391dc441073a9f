package coverage

import (
	"fmt"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
)

// Default model parameters
const (
	DefaultNeighborStep      = 5.0
	DefaultPlacementAttempts = 500
)

// Position is the center of one sensor
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Placement is one candidate solution. Order only matters as a perturbation index.
type Placement []Position

// Clone returns a deep copy of the placement
func (p Placement) Clone() Placement {
	if p == nil {
		return nil
	}
	cloned := make(Placement, len(p))
	copy(cloned, p)
	return cloned
}

// Params holds the geometry of a coverage problem
type Params struct {
	Size              float64
	Radius            float64
	Sensors           int
	NeighborStep      float64
	PlacementAttempts int
}

// ParamsFromExperiment extracts the model parameters of an experiment
func ParamsFromExperiment(exp *config.Experiment) Params {
	return Params{
		Size:              exp.DomainSize,
		Radius:            exp.CoverageRadius,
		Sensors:           exp.SensorCount,
		NeighborStep:      exp.NeighborStep,
		PlacementAttempts: exp.PlacementAttempts,
	}
}

// Model evaluates placements inside a square domain and holds the committed
// placement of the active search. Evaluation never touches the committed state.
type Model struct {
	Params

	mu       sync.RWMutex
	current  Placement
	overlaps int

	side    int
	buffers sync.Pool
}

// NewModel validates params and creates a model
func NewModel(params Params) (*Model, error) {
	if params.NeighborStep <= 0 {
		params.NeighborStep = DefaultNeighborStep
	}
	if params.PlacementAttempts <= 0 {
		params.PlacementAttempts = DefaultPlacementAttempts
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m := &Model{Params: params}
	m.side = int(math.Floor(params.Size)) + 1
	cells := m.side * m.side
	m.buffers.New = func() any {
		buf := make([]bool, cells)
		return &buf
	}
	return m, nil
}

var hexDensity = math.Pi / math.Sqrt(12)

// Validate fails fast on geometries where no valid placement of all sensors can exist.
func (p Params) Validate() error {
	if !(p.Size > 0) || math.IsInf(p.Size, 0) {
		return fmt.Errorf("%w: domain size must be positive, got %v", ErrInvalidConfiguration, p.Size)
	}
	if !(p.Radius > 0) || math.IsInf(p.Radius, 0) {
		return fmt.Errorf("%w: coverage radius must be positive, got %v", ErrInvalidConfiguration, p.Radius)
	}
	if p.Sensors <= 0 {
		return fmt.Errorf("%w: sensor count must be positive, got %d", ErrInvalidConfiguration, p.Sensors)
	}
	if p.Size < 2*p.Radius {
		return fmt.Errorf("%w: a sensor of radius %v does not fit in a domain of size %v",
			ErrInvalidConfiguration, p.Radius, p.Size)
	}
	if math.Ceil(p.Radius) > math.Floor(p.Size-p.Radius) {
		return fmt.Errorf("%w: no integer position keeps a sensor of radius %v inside a domain of size %v",
			ErrInvalidConfiguration, p.Radius, p.Size)
	}
	// No packing of equal disks in a convex region is denser than the
	// hexagonal lattice, π/√12 (Fejes Tóth).
	disks := float64(p.Sensors) * math.Pi * p.Radius * p.Radius
	if limit := hexDensity * p.Size * p.Size; disks > limit {
		return fmt.Errorf("%w: %d disjoint sensors of radius %v need area %.1f, densest packing of the domain allows %.1f",
			ErrInvalidConfiguration, p.Sensors, p.Radius, disks, limit)
	}
	return nil
}

// WithinBounds reports whether pos lies inside the closed domain [0, Size]².
func (m *Model) WithinBounds(pos Position) bool {
	return pos.X >= 0 && pos.X <= m.Size && pos.Y >= 0 && pos.Y <= m.Size
}

// Overlap reports whether two sensors are closer than twice the radius
func (m *Model) Overlap(a, b Position) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) < 2*m.Radius
}

// Valid reports whether every sensor is in bounds and no two sensors overlap
func (m *Model) Valid(p Placement) bool {
	for i, pos := range p {
		if !m.WithinBounds(pos) {
			return false
		}
		for j := i + 1; j < len(p); j++ {
			if m.Overlap(pos, p[j]) {
				return false
			}
		}
	}
	return true
}

// overlapsOthers reports whether pos overlaps any sensor of p other than index skip
func (m *Model) overlapsOthers(p Placement, pos Position, skip int) bool {
	for j, other := range p {
		if j == skip {
			continue
		}
		if m.Overlap(pos, other) {
			return true
		}
	}
	return false
}

// Commit makes p the model's current placement and records its overlap count.
// It is the only mutator of the committed state.
func (m *Model) Commit(p Placement, overlaps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = p.Clone()
	m.overlaps = overlaps
}

// Current returns a copy of the committed placement
func (m *Model) Current() Placement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Overlaps returns the overlap count of the last committed evaluation
func (m *Model) Overlaps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overlaps
}

// Snapshot returns the committed placement and its overlap count together
func (m *Model) Snapshot() (Placement, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone(), m.overlaps
}
