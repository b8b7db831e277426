package geo

import "github.com/paulmach/orb"

// Quadrant is a compass quadrant relative to a reference point.
type Quadrant uint8

const (
	NE Quadrant = iota
	NW
	SE
	SW
)

func (q Quadrant) String() string {
	switch q {
	case NE:
		return "NE"
	case NW:
		return "NW"
	case SE:
		return "SE"
	default:
		return "SW"
	}
}

// QuadrantOf places p in a quadrant around origin. Points on an axis fall
// to the north/east side.
func QuadrantOf(origin, p orb.Point) Quadrant {
	north := p.Lat() >= origin.Lat()
	east := p.Lon() >= origin.Lon()
	switch {
	case north && east:
		return NE
	case north:
		return NW
	case east:
		return SE
	default:
		return SW
	}
}

// Opposite reports whether a and b are diagonally opposite quadrants.
func Opposite(a, b Quadrant) bool {
	switch a {
	case NE:
		return b == SW
	case SW:
		return b == NE
	case NW:
		return b == SE
	default:
		return b == NW
	}
}
