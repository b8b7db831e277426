package balance

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"vspcbal/internal/geo"
)

// rankChunk is the number of units ranked per worker task.
const rankChunk = 256

// Rank is one entry of a proximity ranking: a center index and its distance in miles.
type Rank struct {
	Center   int
	Distance float64
}

// Ranking lists every center for one unit, ascending by distance with ties
// broken by center id.
type Ranking []Rank

// BuildRankings computes the proximity ranking of every unit against every
// center. Rankings are independent per unit and are built concurrently on at
// most workers goroutines. The result is indexed like units.
func BuildRankings(ctx context.Context, units []UnitRecord, centers []CenterRecord, workers int) ([]Ranking, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Ranking, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(units); start += rankChunk {
		end := min(start+rankChunk, len(units))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = rankUnit(units[i], centers)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func rankUnit(u UnitRecord, centers []CenterRecord) Ranking {
	r := make(Ranking, len(centers))
	for i, c := range centers {
		r[i] = Rank{Center: i, Distance: geo.Distance(u.Location, c.Location)}
	}
	slices.SortFunc(r, func(a, b Rank) int {
		if a.Distance != b.Distance {
			return cmp.Compare(a.Distance, b.Distance)
		}
		return strings.Compare(centers[a.Center].ID, centers[b.Center].ID)
	})
	return r
}

// position returns the 0-based position of center c in the ranking, or -1.
func (r Ranking) position(c int) int {
	for i, e := range r {
		if e.Center == c {
			return i
		}
	}
	return -1
}
