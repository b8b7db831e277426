package balance

const (
	defaultTolerance            = 0.25
	defaultMaxRankDepth         = 10
	defaultRuralThreshold       = 3
	defaultRelaxedCeilingFactor = 1.5
	defaultMaxIterations        = 1000
)

// QuadrantGuard forbids moves between diagonally opposite quadrants around a
// reference point unless the destination shares the unit's own quadrant.
type QuadrantGuard struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	CenterLat float64 `yaml:"centerLat" json:"centerLat"`
	CenterLng float64 `yaml:"centerLng" json:"centerLng"`
}

// Config controls a rebalancing run.
type Config struct {
	// Tolerance is the relative band around target, e.g. 0.25 for ±25%.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// MaxRankDepth is the deepest proximity rank a unit may be moved to (rank 1 = nearest).
	MaxRankDepth int `yaml:"maxRankDepth" json:"maxRankDepth"`

	// RuralThreshold marks a center rural when at most this many units are nearest to it.
	RuralThreshold int `yaml:"ruralThreshold" json:"ruralThreshold"`

	// RelaxedCeilingFactor times target is the acceptance ceiling used when no
	// candidate is underloaded.
	RelaxedCeilingFactor float64 `yaml:"relaxedCeilingFactor" json:"relaxedCeilingFactor"`

	// MaxIterations caps the number of outer cascade iterations.
	MaxIterations int `yaml:"maxIterations" json:"maxIterations"`

	// MaxMoveDistanceMiles skips candidates farther than this from the unit. Zero disables the cap.
	MaxMoveDistanceMiles float64 `yaml:"maxMoveDistanceMiles" json:"maxMoveDistanceMiles"`

	// RankingWorkers bounds ranking parallelism. Zero means GOMAXPROCS.
	RankingWorkers int `yaml:"rankingWorkers" json:"rankingWorkers"`

	QuadrantGuard QuadrantGuard `yaml:"quadrantGuard" json:"quadrantGuard"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:            defaultTolerance,
		MaxRankDepth:         defaultMaxRankDepth,
		RuralThreshold:       defaultRuralThreshold,
		RelaxedCeilingFactor: defaultRelaxedCeilingFactor,
		MaxIterations:        defaultMaxIterations,
	}
}

// Validate checks field ranges.
func (c Config) Validate() error {
	switch {
	case c.Tolerance < 0 || c.Tolerance >= 1:
		return &ConfigError{Field: "tolerance", Reason: "must be in [0,1)"}
	case c.MaxRankDepth < 2:
		return &ConfigError{Field: "maxRankDepth", Reason: "must be >= 2"}
	case c.RuralThreshold < 0:
		return &ConfigError{Field: "ruralThreshold", Reason: "must be >= 0"}
	case c.RelaxedCeilingFactor < 1:
		return &ConfigError{Field: "relaxedCeilingFactor", Reason: "must be >= 1"}
	case c.MaxIterations < 1:
		return &ConfigError{Field: "maxIterations", Reason: "must be >= 1"}
	case c.MaxMoveDistanceMiles < 0:
		return &ConfigError{Field: "maxMoveDistanceMiles", Reason: "must be >= 0"}
	case c.RankingWorkers < 0:
		return &ConfigError{Field: "rankingWorkers", Reason: "must be >= 0"}
	}
	return nil
}
