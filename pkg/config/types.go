package config

import "time"

// Experiment describes one sensor-placement experiment: the domain, the
// sensors and the parameters of both searches.
type Experiment struct {
	DomainSize        float64         `yaml:"domain_size" json:"domain_size"`
	SensorCount       int             `yaml:"sensor_count" json:"sensor_count"`
	CoverageRadius    float64         `yaml:"coverage_radius" json:"coverage_radius"`
	NeighborStep      float64         `yaml:"neighbor_step" json:"neighbor_step"`
	PlacementAttempts int             `yaml:"placement_attempts" json:"placement_attempts"`
	Seed              int64           `yaml:"seed" json:"seed"`
	HillClimbing      HillClimbing    `yaml:"hill_climbing" json:"hill_climbing"`
	Annealing         Annealing       `yaml:"annealing" json:"annealing"`
	Pacing            Pacing          `yaml:"pacing" json:"pacing"`
	Callback          *CallbackTarget `yaml:"callback,omitempty" json:"callback,omitempty"`
}

// HillClimbing configures random-restart steepest ascent
type HillClimbing struct {
	MaxRestarts int `yaml:"max_restarts" json:"max_restarts"`
}

// Annealing configures simulated annealing
type Annealing struct {
	InitialTemperature float64 `yaml:"initial_temperature" json:"initial_temperature"`
	CoolingRate        float64 `yaml:"cooling_rate" json:"cooling_rate"`
	MinTemperature     float64 `yaml:"min_temperature" json:"min_temperature"`
	PerturbationRange  int     `yaml:"perturbation_range" json:"perturbation_range"`
	LogEvery           int     `yaml:"log_every" json:"log_every"`
}

// Pacing controls observation delays. It never changes search outcomes.
type Pacing struct {
	StepDelay      string `yaml:"step_delay" json:"step_delay"`           // e.g. "500ms"
	AlgorithmPause string `yaml:"algorithm_pause" json:"algorithm_pause"` // e.g. "2s"
}

// CallbackTarget is notified when a daemon run reaches a terminal state
type CallbackTarget struct {
	URL    string `yaml:"url" json:"url"`
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// DefaultExperiment returns the reference configuration: a 120x120 domain,
// ten sensors of radius 15, 20 restarts and a 1000 -> 0.1 geometric schedule.
func DefaultExperiment() *Experiment {
	return &Experiment{
		DomainSize:        120,
		SensorCount:       10,
		CoverageRadius:    15,
		NeighborStep:      5,
		PlacementAttempts: 500,
		HillClimbing: HillClimbing{
			MaxRestarts: 20,
		},
		Annealing: Annealing{
			InitialTemperature: 1000,
			CoolingRate:        0.95,
			MinTemperature:     0.1,
			PerturbationRange:  10,
			LogEvery:           50,
		},
		Pacing: Pacing{
			StepDelay:      "0s",
			AlgorithmPause: "2s",
		},
	}
}

// GetStepDelay parses the per-iteration pacing delay
func (p *Pacing) GetStepDelay() (time.Duration, error) {
	return parseOptionalDuration(p.StepDelay)
}

// GetAlgorithmPause parses the pause inserted between the two searches
func (p *Pacing) GetAlgorithmPause() (time.Duration, error) {
	return parseOptionalDuration(p.AlgorithmPause)
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
