package balance

import "github.com/paulmach/orb"

// UnitRecord is an input precinct.
type UnitRecord struct {
	ID       string
	Weight   int
	Location orb.Point

	// Pinned units are never moved by the cascade. PinnedCenterID, when set,
	// overrides the nearest-center seed assignment.
	Pinned         bool
	PinnedCenterID string
}

// CenterRecord is an input VSPC. Name is carried through to results.
type CenterRecord struct {
	ID       string
	Name     string
	Location orb.Point
}

// Unit is a snapshot of a precinct's assignment state.
type Unit struct {
	ID               string
	Weight           int
	Pinned           bool
	NearestCenterID  string
	NearestDistance  float64
	AssignedCenterID string
	AssignedDistance float64
	AssignedRank     int // 1-based position in the unit's proximity ranking
	Reassigned       bool
}

// Center is a snapshot of a VSPC's aggregates.
type Center struct {
	ID             string
	Name           string
	AssignedWeight int
	MemberIDs      []string // sorted
	Rural          bool
	BaselineCount  int // units whose nearest center is this one
}

// Load classifies a center's weight relative to the tolerance band.
type Load int

const (
	Balanced Load = iota
	Underloaded
	Overloaded
)

func (l Load) String() string {
	switch l {
	case Underloaded:
		return "underloaded"
	case Overloaded:
		return "overloaded"
	default:
		return "balanced"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Load) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Load) UnmarshalText(b []byte) error {
	switch string(b) {
	case "underloaded":
		*l = Underloaded
	case "overloaded":
		*l = Overloaded
	default:
		*l = Balanced
	}
	return nil
}

// State is the cascade controller's state.
type State int

const (
	Running State = iota
	Converged
	Stalled
	IterationLimitReached
)

func (s State) String() string {
	switch s {
	case Converged:
		return "converged"
	case Stalled:
		return "stalled"
	case IterationLimitReached:
		return "iteration_limit_reached"
	default:
		return "running"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool { return s != Running }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "converged":
		*s = Converged
	case "stalled":
		*s = Stalled
	case "iteration_limit_reached":
		*s = IterationLimitReached
	default:
		*s = Running
	}
	return nil
}
