package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"tolerance":            func(c *Config) { c.Tolerance = 1 },
		"maxRankDepth":         func(c *Config) { c.MaxRankDepth = 1 },
		"ruralThreshold":       func(c *Config) { c.RuralThreshold = -1 },
		"relaxedCeilingFactor": func(c *Config) { c.RelaxedCeilingFactor = 0.9 },
		"maxIterations":        func(c *Config) { c.MaxIterations = 0 },
		"maxMoveDistanceMiles": func(c *Config) { c.MaxMoveDistanceMiles = -1 },
		"rankingWorkers":       func(c *Config) { c.RankingWorkers = -2 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, field, ce.Field)
		})
	}
}
