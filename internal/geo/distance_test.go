package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceCoincidentPoints(t *testing.T) {
	p := Point(39.6478, -104.9878)
	d := Distance(p, p)
	require.False(t, math.IsNaN(d))
	require.InDelta(t, 0, d, 1e-9)
}

func TestDistanceNearIdenticalPoints(t *testing.T) {
	a := Point(39.6478, -104.9878)
	b := Point(39.6478+1e-12, -104.9878-1e-12)
	d := Distance(a, b)
	require.False(t, math.IsNaN(d))
	require.Less(t, d, 1e-6)
}

func TestDistanceKnownPair(t *testing.T) {
	// Denver Union Station to Boulder Pearl St, about 23.6 miles.
	denver := Point(39.7527, -105.0001)
	boulder := Point(40.0180, -105.2797)
	require.InDelta(t, 23.6, Distance(denver, boulder), 0.5)
}

func TestDistanceOneDegreeLatitude(t *testing.T) {
	a := Point(0, 0)
	b := Point(1, 0)
	want := EarthRadiusMiles * math.Pi / 180
	require.InDelta(t, want, Distance(a, b), 1e-9)
}

func TestDistanceSymmetric(t *testing.T) {
	a := Point(39.70, -104.90)
	b := Point(39.55, -104.75)
	require.Equal(t, Distance(a, b), Distance(b, a))
}

func TestDistanceAntipodalStaysFinite(t *testing.T) {
	d := Distance(Point(0, 0), Point(0, 180))
	require.InDelta(t, EarthRadiusMiles*math.Pi, d, 1e-6)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Point(39.7, -104.9)))
	require.Error(t, Validate(Point(math.NaN(), -104.9)))
	require.Error(t, Validate(Point(39.7, math.Inf(1))))
	require.Error(t, Validate(Point(91, 0)))
	require.Error(t, Validate(Point(0, -181)))
}

func TestQuadrants(t *testing.T) {
	origin := Point(39.65, -104.90)
	require.Equal(t, NE, QuadrantOf(origin, Point(39.70, -104.80)))
	require.Equal(t, NW, QuadrantOf(origin, Point(39.70, -105.00)))
	require.Equal(t, SE, QuadrantOf(origin, Point(39.60, -104.80)))
	require.Equal(t, SW, QuadrantOf(origin, Point(39.60, -105.00)))
	require.True(t, Opposite(SW, NE))
	require.True(t, Opposite(NW, SE))
	require.False(t, Opposite(NE, NW))
	require.Equal(t, "SW", SW.String())
}
