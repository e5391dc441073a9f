package search

import "fmt"

// Schedule controls the temperature of simulated annealing
type Schedule interface {
	// Name returns the name of the cooling schedule
	Name() string
	// Initial returns the starting temperature
	Initial() float64
	// Next returns the temperature after one iteration at t
	Next(t float64) float64
	// Done reports whether the search stops at temperature t
	Done(t float64) bool
}

// GeometricSchedule multiplies the temperature by Alpha every iteration and
// stops once it is no longer above Min.
type GeometricSchedule struct {
	Start float64
	Alpha float64
	Min   float64
}

// NewGeometricSchedule validates the parameters so that the schedule terminates
func NewGeometricSchedule(start, alpha, min float64) (*GeometricSchedule, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("cooling rate must be in (0, 1), got %v", alpha)
	}
	if !(min > 0) {
		return nil, fmt.Errorf("minimum temperature must be positive, got %v", min)
	}
	if !(start > min) {
		return nil, fmt.Errorf("initial temperature %v must exceed minimum %v", start, min)
	}
	return &GeometricSchedule{Start: start, Alpha: alpha, Min: min}, nil
}

func (s *GeometricSchedule) Name() string {
	return "geometric"
}

func (s *GeometricSchedule) Initial() float64 {
	return s.Start
}

func (s *GeometricSchedule) Next(t float64) float64 {
	return t * s.Alpha
}

func (s *GeometricSchedule) Done(t float64) bool {
	return t <= s.Min
}
