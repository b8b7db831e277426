package balance

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRankings_Order(t *testing.T) {
	centers := []CenterRecord{
		center("far", 40.50, -104.90),
		center("Y", 39.70, -104.80),
		center("X", 39.70, -104.80),
		center("near", 39.70, -104.90),
	}
	r, err := BuildRankings(context.Background(), []UnitRecord{unit("u", 1, 39.70, -104.91)}, centers, 0)
	require.NoError(t, err)
	require.Len(t, r, 1)

	var ids []string
	for _, e := range r[0] {
		ids = append(ids, centers[e.Center].ID)
	}
	assert.Equal(t, []string{"near", "X", "Y", "far"}, ids, "equal distances order by id")
	for i := 1; i < len(r[0]); i++ {
		assert.LessOrEqual(t, r[0][i-1].Distance, r[0][i].Distance)
	}
}

func TestBuildRankings_WorkersAgree(t *testing.T) {
	var centers []CenterRecord
	for i := 0; i < 12; i++ {
		centers = append(centers, center("c"+strconv.Itoa(i), 39.5+float64(i%4)*0.1, -105+float64(i/4)*0.1))
	}
	var units []UnitRecord
	for i := 0; i < 1000; i++ {
		units = append(units, unit("u"+strconv.Itoa(i), 1, 39.5+float64(i%40)*0.01, -105+float64(i/40)*0.01))
	}
	serial, err := BuildRankings(context.Background(), units, centers, 1)
	require.NoError(t, err)
	parallel, err := BuildRankings(context.Background(), units, centers, 8)
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)
}

func TestBuildRankings_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildRankings(ctx, westOfA(), lineCenters(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
