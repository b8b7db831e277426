package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/balance"
	"vspcbal/internal/integrations"
)

func TestGenerate_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Units, cfg.Centers = 200, 12
	a := Generate(cfg)
	b := Generate(cfg)
	assert.Equal(t, a, b)
	require.Len(t, a.Units, 200)
	require.Len(t, a.Centers, 12)

	for _, u := range a.Units {
		assert.True(t, cfg.Bound.Contains(u.Location), u.ID)
		assert.GreaterOrEqual(t, u.Weight, cfg.MinWeight)
		assert.LessOrEqual(t, u.Weight, cfg.MaxWeight)
	}

	cfg.Seed++
	assert.NotEqual(t, a.Units, Generate(cfg).Units)
}

// Properties that must hold for any county, whatever the final state.
func TestGeneratedCounties_Properties(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		cfg := DefaultConfig()
		cfg.Seed = seed
		cfg.Units, cfg.Centers = 300, 15
		county := Generate(cfg)

		res, err := balance.Run(context.Background(), county.Units, county.Centers, balance.DefaultConfig())
		require.NoError(t, err, "seed %d", seed)
		require.True(t, res.State.Terminal())

		total := 0
		for _, c := range res.Centers {
			total += c.AssignedWeight
			if c.Rural {
				assert.Equal(t, c.BaselineUnitCount, c.AssignedUnitCount, "rural center %s keeps its units", c.ID)
			}
		}
		assert.Equal(t, res.TotalWeight, total, "seed %d", seed)

		for _, u := range res.Units {
			assert.GreaterOrEqual(t, u.AssignedDistance, u.NearestDistance, u.ID)
			assert.LessOrEqual(t, u.AssignedRank, balance.DefaultConfig().MaxRankDepth, u.ID)
		}
		// Converged bounds every center from above only; a center may
		// finish below the band.
		if res.State == balance.Converged {
			for _, c := range res.Centers {
				assert.LessOrEqual(t, float64(c.AssignedWeight), res.Band.High, c.ID)
			}
		}

		again, err := balance.Run(context.Background(), county.Units, county.Centers, balance.DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, res.Digest, again.Digest, "seed %d", seed)
	}
}

func TestSourceLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Units, cfg.Centers = 40, 4
	var src integrations.Source = Source{Config: cfg}
	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Units, 40)
	assert.Len(t, ds.Centers, 4)
	assert.Contains(t, src.Name(), "seed 42")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
