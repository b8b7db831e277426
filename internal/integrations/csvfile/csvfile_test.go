package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/balance"
)

const unitsCSV = `PRECINCT,Total Voters,Latitude,Longitude,pinned_center
1001,500,39.70,-104.91,
1002,400,39.70,-104.92,

1003,300.0,39.70,-104.93,B
`

const centersCSV = `id,name,lat,lng
A,Library,39.70,-104.90
B,Rec Center,39.70,-104.80
`

func TestReadUnits_Aliases(t *testing.T) {
	units, err := ReadUnits(strings.NewReader(unitsCSV))
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "1001", units[0].ID)
	assert.Equal(t, 500, units[0].Weight)
	assert.InDelta(t, 39.70, units[0].Location.Lat(), 1e-12)
	assert.InDelta(t, -104.91, units[0].Location.Lon(), 1e-12)
	assert.False(t, units[0].Pinned)

	assert.Equal(t, 300, units[2].Weight)
	assert.True(t, units[2].Pinned)
	assert.Equal(t, "B", units[2].PinnedCenterID)
}

func TestReadUnits_Errors(t *testing.T) {
	_, err := ReadUnits(strings.NewReader("id,lat,lng\nx,1,2\n"))
	assert.ErrorContains(t, err, `missing column "weight"`)

	_, err = ReadUnits(strings.NewReader("id,weight,lat,lng\nx,abc,1,2\n"))
	assert.ErrorIs(t, err, balance.ErrInvalidData)

	_, err = ReadUnits(strings.NewReader("id,weight,lat,lng\nx,1,north,2\n"))
	var de *balance.DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "x", de.ID)
}

func TestReadUnits_Weights(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"120", 120, true},
		{"120.0", 120, true},
		{"0", 0, true},
		{"12.9", 0, false},
		{"0.5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Inf", 0, false},
		{"1e30", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			units, err := ReadUnits(strings.NewReader("id,weight,lat,lng\nu1," + tc.in + ",39.7,-104.9\n"))
			if !tc.ok {
				var de *balance.DataError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, "u1", de.ID)
				assert.Equal(t, "bad weight", de.Reason)
				return
			}
			require.NoError(t, err)
			require.Len(t, units, 1)
			assert.Equal(t, tc.want, units[0].Weight)
		})
	}
}

func TestReadCenters(t *testing.T) {
	centers, err := ReadCenters(strings.NewReader(centersCSV))
	require.NoError(t, err)
	require.Len(t, centers, 2)
	assert.Equal(t, "Rec Center", centers[1].Name)
	assert.InDelta(t, -104.80, centers[1].Location.Lon(), 1e-12)
}

func TestWriteResults(t *testing.T) {
	units, err := ReadUnits(strings.NewReader(unitsCSV))
	require.NoError(t, err)
	centers, err := ReadCenters(strings.NewReader(centersCSV))
	require.NoError(t, err)
	cfg := balance.DefaultConfig()
	cfg.RuralThreshold = 0
	res, err := balance.Run(context.Background(), units, centers, cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteUnits(&buf, res.Units))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "1003", rows[3][0])
	assert.Equal(t, "B", rows[3][5])

	buf.Reset()
	require.NoError(t, WriteCenters(&buf, res.Centers))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name", "assigned_weight", "assigned_units", "baseline_units", "rural", "load", "deviation_pct"}, rows[0])
}

func TestSource_Load(t *testing.T) {
	dir := t.TempDir()
	up := filepath.Join(dir, "units.csv")
	cp := filepath.Join(dir, "centers.csv")
	require.NoError(t, os.WriteFile(up, []byte(unitsCSV), 0o600))
	require.NoError(t, os.WriteFile(cp, []byte(centersCSV), 0o600))

	ds, err := Source{UnitsPath: up, CentersPath: cp}.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Units, 3)
	assert.Len(t, ds.Centers, 2)

	_, err = Source{UnitsPath: filepath.Join(dir, "missing.csv"), CentersPath: cp}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
