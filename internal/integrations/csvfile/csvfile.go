// Package csvfile reads unit and center records from CSV and writes result
// records back out. Headers are matched case-insensitively and a few common
// aliases are accepted (precinct, voters, latitude, longitude).
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"vspcbal/internal/balance"
	"vspcbal/internal/geo"
	"vspcbal/internal/integrations"
)

var aliases = map[string]string{
	"id":               "id",
	"precinct":         "id",
	"vspc":             "id",
	"weight":           "weight",
	"voters":           "weight",
	"total_voters":     "weight",
	"lat":              "lat",
	"latitude":         "lat",
	"lng":              "lng",
	"lon":              "lng",
	"longitude":        "lng",
	"name":             "name",
	"pinned":           "pinned",
	"pinned_center":    "pinned_center",
	"pinned_center_id": "pinned_center",
}

type table struct {
	r    *csv.Reader
	cols map[string]int
	kind string
}

func newTable(r io.Reader, kind string, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s csv header: %w", kind, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if canon, ok := aliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, col := range required {
		if _, ok := cols[col]; !ok {
			return nil, fmt.Errorf("%s csv: missing column %q", kind, col)
		}
	}
	return &table{r: cr, cols: cols, kind: kind}, nil
}

// next returns the next row, or io.EOF.
func (t *table) next() ([]string, error) {
	for {
		rec, err := t.r.Read()
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}

func (t *table) get(rec []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *table) point(rec []string, id string) (orb.Point, error) {
	lat, err := strconv.ParseFloat(t.get(rec, "lat"), 64)
	if err != nil {
		return orb.Point{}, &balance.DataError{Kind: t.kind, ID: id, Reason: "bad latitude"}
	}
	lng, err := strconv.ParseFloat(t.get(rec, "lng"), 64)
	if err != nil {
		return orb.Point{}, &balance.DataError{Kind: t.kind, ID: id, Reason: "bad longitude"}
	}
	return geo.Point(lat, lng), nil
}

// maxWholeFloat is the largest integer a float64 holds exactly.
const maxWholeFloat = 1 << 53

// parseWeight accepts integers and whole-valued decimals such as "300.0",
// which spreadsheet exports produce. Fractions, NaN, Inf and values outside
// the exact float range are rejected.
func parseWeight(s string) (int, bool) {
	if w, err := strconv.Atoi(s); err == nil {
		return w, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxWholeFloat {
		return 0, false
	}
	return int(f), true
}

// ReadUnits parses unit records. Required columns: id, weight, lat, lng.
// Optional: pinned (bool) and pinned_center (implies pinned).
func ReadUnits(r io.Reader) ([]balance.UnitRecord, error) {
	t, err := newTable(r, "unit", "id", "weight", "lat", "lng")
	if err != nil {
		return nil, err
	}
	var out []balance.UnitRecord
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("unit csv: %w", err)
		}
		id := t.get(rec, "id")
		w, ok := parseWeight(t.get(rec, "weight"))
		if !ok {
			return nil, &balance.DataError{Kind: "unit", ID: id, Reason: "bad weight"}
		}
		p, err := t.point(rec, id)
		if err != nil {
			return nil, err
		}
		u := balance.UnitRecord{ID: id, Weight: w, Location: p}
		if s := t.get(rec, "pinned"); s != "" {
			if u.Pinned, err = strconv.ParseBool(s); err != nil {
				return nil, &balance.DataError{Kind: "unit", ID: id, Reason: "bad pinned flag"}
			}
		}
		if c := t.get(rec, "pinned_center"); c != "" {
			u.Pinned, u.PinnedCenterID = true, c
		}
		out = append(out, u)
	}
}

// ReadCenters parses center records. Required columns: id, lat, lng.
func ReadCenters(r io.Reader) ([]balance.CenterRecord, error) {
	t, err := newTable(r, "center", "id", "lat", "lng")
	if err != nil {
		return nil, err
	}
	var out []balance.CenterRecord
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("center csv: %w", err)
		}
		id := t.get(rec, "id")
		p, err := t.point(rec, id)
		if err != nil {
			return nil, err
		}
		out = append(out, balance.CenterRecord{ID: id, Name: t.get(rec, "name"), Location: p})
	}
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }

// WriteUnits writes one row per unit result.
func WriteUnits(w io.Writer, units []balance.UnitResult) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "weight", "nearest_center", "nearest_miles", "secondary_center",
		"assigned_center", "assigned_miles", "assigned_rank", "delta_miles", "reassigned", "pinned"})
	for _, u := range units {
		_ = cw.Write([]string{
			u.ID, strconv.Itoa(u.Weight), u.NearestCenterID, ftoa(u.NearestDistance), u.SecondaryCenterID,
			u.AssignedCenterID, ftoa(u.AssignedDistance), strconv.Itoa(u.AssignedRank), ftoa(u.DistanceDelta),
			strconv.FormatBool(u.Reassigned), strconv.FormatBool(u.Pinned),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteCenters writes one row per center result.
func WriteCenters(w io.Writer, centers []balance.CenterResult) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "name", "assigned_weight", "assigned_units", "baseline_units",
		"rural", "load", "deviation_pct"})
	for _, c := range centers {
		_ = cw.Write([]string{
			c.ID, c.Name, strconv.Itoa(c.AssignedWeight), strconv.Itoa(c.AssignedUnitCount),
			strconv.Itoa(c.BaselineUnitCount), strconv.FormatBool(c.Rural), c.Load.String(),
			strconv.FormatFloat(c.DeviationPct, 'f', 2, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}

// Source loads a dataset from a pair of CSV files.
type Source struct {
	UnitsPath   string
	CentersPath string
}

var _ integrations.Source = Source{}

func (s Source) Name() string { return "csv:" + s.UnitsPath }

func (s Source) Load(ctx context.Context) (integrations.Dataset, error) {
	var ds integrations.Dataset
	uf, err := os.Open(s.UnitsPath)
	if err != nil {
		return ds, err
	}
	defer uf.Close()
	if ds.Units, err = ReadUnits(uf); err != nil {
		return ds, fmt.Errorf("%s: %w", s.UnitsPath, err)
	}
	if err := ctx.Err(); err != nil {
		return ds, err
	}
	cf, err := os.Open(s.CentersPath)
	if err != nil {
		return ds, err
	}
	defer cf.Close()
	if ds.Centers, err = ReadCenters(cf); err != nil {
		return ds, fmt.Errorf("%s: %w", s.CentersPath, err)
	}
	return ds, nil
}
