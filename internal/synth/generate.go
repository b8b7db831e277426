// Package synth builds deterministic synthetic counties for demos, benchmarks
// and property tests. Population density comes from layered simplex noise so
// that units cluster into towns with sparse countryside in between.
package synth

import (
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
	"github.com/paulmach/orb"

	"vspcbal/internal/balance"
)

// Config holds generation parameters.
type Config struct {
	Units     int
	Centers   int
	Seed      int64     // 0 picks a random seed
	Bound     orb.Bound // county extent
	MinWeight int
	MaxWeight int
}

// DefaultConfig returns a Denver-sized county with 600 units and 30 centers.
func DefaultConfig() Config {
	return Config{
		Units:     600,
		Centers:   30,
		Seed:      42,
		Bound:     orb.Bound{Min: orb.Point{-105.25, 39.55}, Max: orb.Point{-104.60, 39.95}},
		MinWeight: 50,
		MaxWeight: 2500,
	}
}

// County is a generated input set.
type County struct {
	Seed    int64
	Units   []balance.UnitRecord
	Centers []balance.CenterRecord
}

// noise scale: roughly one town per 0.1 degrees.
const frequency = 8.0

// Generate samples units and centers from the density field. The same
// config always yields the same county.
func Generate(cfg Config) County {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Bound.IsZero() {
		cfg.Bound = DefaultConfig().Bound
	}
	if cfg.MaxWeight < cfg.MinWeight {
		cfg.MaxWeight = cfg.MinWeight
	}
	rng := rand.New(rand.NewSource(seed))
	density := opensimplex.NewNormalized(seed)

	c := County{Seed: seed}
	for i := 0; i < cfg.Units; i++ {
		p, d := sample(rng, density, cfg.Bound)
		w := cfg.MinWeight + int(d*float64(cfg.MaxWeight-cfg.MinWeight))
		c.Units = append(c.Units, balance.UnitRecord{
			ID:       fmt.Sprintf("P%05d", i+1),
			Weight:   w,
			Location: p,
		})
	}
	for i := 0; i < cfg.Centers; i++ {
		p, _ := sample(rng, density, cfg.Bound)
		c.Centers = append(c.Centers, balance.CenterRecord{
			ID:       fmt.Sprintf("V%03d", i+1),
			Name:     fmt.Sprintf("Vote Center %d", i+1),
			Location: p,
		})
	}
	return c
}

// sample draws a point by rejection against the density field and returns
// it with its density in [0,1].
func sample(rng *rand.Rand, noise opensimplex.Noise, b orb.Bound) (orb.Point, float64) {
	for {
		p := orb.Point{
			b.Min.Lon() + rng.Float64()*(b.Max.Lon()-b.Min.Lon()),
			b.Min.Lat() + rng.Float64()*(b.Max.Lat()-b.Min.Lat()),
		}
		d := octaveNoise(noise, p.Lon(), p.Lat(), 3, frequency, 0.5)
		if rng.Float64() < d*d {
			return p, d
		}
	}
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, freq, persistence float64) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*freq, y*freq) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		freq *= 2
	}
	return total / maxVal
}
