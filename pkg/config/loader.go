package config

import (
	"fmt"
	"net/url"
	"os"
)

// LoadExperiment loads and parses an experiment file
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file %s: %w", path, err)
	}
	exp, err := ParseExperimentYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse experiment file %s: %w", path, err)
	}
	return exp, nil
}

// ValidateExperiment checks parameter ranges. Geometric feasibility of the
// sensor count and radius is checked by the coverage model itself.
func ValidateExperiment(e *Experiment) error {
	if e.DomainSize <= 0 {
		return fmt.Errorf("domain_size must be positive, got %v", e.DomainSize)
	}
	if e.SensorCount <= 0 {
		return fmt.Errorf("sensor_count must be positive, got %d", e.SensorCount)
	}
	if e.CoverageRadius <= 0 {
		return fmt.Errorf("coverage_radius must be positive, got %v", e.CoverageRadius)
	}
	if e.NeighborStep <= 0 {
		return fmt.Errorf("neighbor_step must be positive, got %v", e.NeighborStep)
	}
	if e.PlacementAttempts <= 0 {
		return fmt.Errorf("placement_attempts must be positive, got %d", e.PlacementAttempts)
	}

	if err := validateHillClimbing(&e.HillClimbing); err != nil {
		return fmt.Errorf("hill_climbing validation failed: %w", err)
	}
	if err := validateAnnealing(&e.Annealing); err != nil {
		return fmt.Errorf("annealing validation failed: %w", err)
	}
	if err := validatePacing(&e.Pacing); err != nil {
		return fmt.Errorf("pacing validation failed: %w", err)
	}

	if e.Callback != nil && e.Callback.URL != "" {
		u, err := url.Parse(e.Callback.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callback url must be an absolute http(s) url, got %q", e.Callback.URL)
		}
	}

	return nil
}

func validateHillClimbing(h *HillClimbing) error {
	if h.MaxRestarts <= 0 {
		return fmt.Errorf("max_restarts must be positive, got %d", h.MaxRestarts)
	}
	return nil
}

func validateAnnealing(a *Annealing) error {
	if a.MinTemperature <= 0 {
		return fmt.Errorf("min_temperature must be positive, got %v", a.MinTemperature)
	}
	if a.InitialTemperature <= a.MinTemperature {
		return fmt.Errorf("initial_temperature (%v) must exceed min_temperature (%v)", a.InitialTemperature, a.MinTemperature)
	}
	if a.CoolingRate <= 0 || a.CoolingRate >= 1 {
		return fmt.Errorf("cooling_rate must be between 0 and 1 (exclusive), got %v", a.CoolingRate)
	}
	if a.PerturbationRange <= 0 {
		return fmt.Errorf("perturbation_range must be positive, got %d", a.PerturbationRange)
	}
	if a.LogEvery < 0 {
		return fmt.Errorf("log_every cannot be negative, got %d", a.LogEvery)
	}
	return nil
}

func validatePacing(p *Pacing) error {
	delay, err := p.GetStepDelay()
	if err != nil {
		return fmt.Errorf("invalid step_delay %s: %w", p.StepDelay, err)
	}
	if delay < 0 {
		return fmt.Errorf("step_delay cannot be negative, got %s", p.StepDelay)
	}
	pause, err := p.GetAlgorithmPause()
	if err != nil {
		return fmt.Errorf("invalid algorithm_pause %s: %w", p.AlgorithmPause, err)
	}
	if pause < 0 {
		return fmt.Errorf("algorithm_pause cannot be negative, got %s", p.AlgorithmPause)
	}
	return nil
}
