package coverage

import "errors"

var (
	// ErrInvalidConfiguration is returned when no valid placement can exist
	// for the given domain, radius and sensor count.
	ErrInvalidConfiguration = errors.New("invalid coverage configuration")

	// ErrInvalidPlacement is returned when a placement holds non-finite coordinates.
	ErrInvalidPlacement = errors.New("invalid placement")

	// ErrPlacementDegraded is returned alongside a placement with fewer than the
	// requested number of sensors. It is not fatal.
	ErrPlacementDegraded = errors.New("placement degraded")
)
