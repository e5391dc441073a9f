package coverage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

func TestRandomPlacementIsValid(t *testing.T) {
	m := newReferenceModel(t)

	for seed := int64(1); seed <= 25; seed++ {
		p, err := m.RandomPlacement(utils.NewRandSource(seed))
		if err != nil {
			require.True(t, errors.Is(err, ErrPlacementDegraded), "seed %d: %v", seed, err)
			assert.Less(t, len(p), m.Sensors)
		} else {
			assert.Len(t, p, m.Sensors)
		}

		assert.True(t, m.Valid(p), "seed %d produced an invalid placement", seed)
		for _, pos := range p {
			assert.GreaterOrEqual(t, pos.X, 15.0)
			assert.LessOrEqual(t, pos.X, 105.0)
			assert.Equal(t, pos.X, float64(int(pos.X)), "coordinates are integers")
			assert.Equal(t, pos.Y, float64(int(pos.Y)), "coordinates are integers")
		}
	}
}

func TestRandomPlacementReproducible(t *testing.T) {
	m := newReferenceModel(t)

	p1, err1 := m.RandomPlacement(utils.NewRandSource(99))
	p2, err2 := m.RandomPlacement(utils.NewRandSource(99))
	assert.Equal(t, err1, err2)
	assert.Equal(t, p1, p2)
}

func TestRandomPlacementDegraded(t *testing.T) {
	m, err := NewModel(Params{Size: 120, Radius: 15, Sensors: 10, PlacementAttempts: 3})
	require.NoError(t, err)

	p, err := m.RandomPlacement(utils.NewRandSource(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlacementDegraded))
	assert.NotEmpty(t, p, "the first draw is always accepted")
	assert.LessOrEqual(t, len(p), 3)
	assert.True(t, m.Valid(p))
}
