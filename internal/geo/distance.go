// Package geo computes great-circle distances between precinct and VSPC coordinates.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusMiles is the mean Earth radius used by Distance.
const EarthRadiusMiles = 3958.8

// Distance returns the haversine distance in miles between a and b.
// Coincident points yield 0; the intermediate term is clamped so rounding
// never produces NaN.
func Distance(a, b orb.Point) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(h))
}

// Validate reports whether p is a usable latitude/longitude pair.
func Validate(p orb.Point) error {
	lat, lng := p.Lat(), p.Lon()
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("coordinate is not a finite number")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", lng)
	}
	return nil
}

// Point builds an orb.Point from latitude and longitude in that order.
func Point(lat, lng float64) orb.Point { return orb.Point{lng, lat} }
