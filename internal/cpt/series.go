package cpt

import (
	"fmt"
	"math"
	"sort"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/openground"
)

// OpenGround headers for StaticConePenetrationData channels. Units are fixed
// by the remote schema: depth [ft], resistances and pore pressure [tsf],
// gamma [counts per second].
const (
	headerDepth       = "Depth"
	headerQC          = "ConeResistance"
	headerQT          = "CorrectedConeResistance"
	headerFS          = "LocalUnitSideFrictionResistance"
	headerU2          = "ShoulderPorewaterPressure"
	headerGamma       = "NaturalGammaRadiation"
	headerGeneralLink = "uui_StaticConePenetrationGeneral"
)

// MeasurementSeries is the depth-indexed measurement block of one test.
// Missing readings are NaN; a nil channel slice means the channel is absent
// from the source entirely. The series is validated and normalized at
// construction and immutable afterward.
type MeasurementSeries struct {
	depth []float64
	qc    []float64
	qt    []float64
	fs    []float64
	u2    []float64
	gamma []float64
}

// NewMeasurementSeries validates and normalizes the channels into a series.
//
// Rows where depth and every resistance channel are all missing are dropped
// (blank/sentinel padding at the end of exports). After dropping, depth values
// must be unique and monotonically non-decreasing, and at least one of the
// qc/qt channels must be present.
func NewMeasurementSeries(depth, qc, qt, fs, u2, gamma []float64) (MeasurementSeries, error) {
	if len(depth) == 0 {
		return MeasurementSeries{}, fmt.Errorf("measurement series: no rows")
	}
	if qc == nil && qt == nil {
		return MeasurementSeries{}, fmt.Errorf("measurement series: at least one of qc/qt is required")
	}
	for name, ch := range map[string][]float64{"qc": qc, "qt": qt, "fs": fs, "u2": u2, "gamma": gamma} {
		if ch != nil && len(ch) != len(depth) {
			return MeasurementSeries{}, fmt.Errorf("measurement series: %s has %d rows, depth has %d", name, len(ch), len(depth))
		}
	}

	s := MeasurementSeries{depth: depth, qc: qc, qt: qt, fs: fs, u2: u2, gamma: gamma}
	s = s.dropEmptyRows()
	if len(s.depth) == 0 {
		return MeasurementSeries{}, fmt.Errorf("measurement series: all rows empty")
	}

	prev := math.Inf(-1)
	for i, d := range s.depth {
		if math.IsNaN(d) {
			return MeasurementSeries{}, fmt.Errorf("measurement series: missing depth at row %d", i)
		}
		if d < prev {
			return MeasurementSeries{}, fmt.Errorf("measurement series: depth decreases at row %d (%g after %g)", i, d, prev)
		}
		if d == prev {
			return MeasurementSeries{}, fmt.Errorf("measurement series: duplicate depth %g at row %d", d, i)
		}
		prev = d
	}
	return s, nil
}

// dropEmptyRows removes rows where depth and the available resistance
// channel(s) are all missing.
func (s MeasurementSeries) dropEmptyRows() MeasurementSeries {
	keep := make([]int, 0, len(s.depth))
	for i, d := range s.depth {
		empty := math.IsNaN(d)
		if s.qc != nil {
			empty = empty && math.IsNaN(s.qc[i])
		} else {
			empty = empty && math.IsNaN(s.qt[i])
		}
		if !empty {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(s.depth) {
		return s
	}
	pick := func(ch []float64) []float64 {
		if ch == nil {
			return nil
		}
		out := make([]float64, 0, len(keep))
		for _, i := range keep {
			out = append(out, ch[i])
		}
		return out
	}
	return MeasurementSeries{
		depth: pick(s.depth),
		qc:    pick(s.qc),
		qt:    pick(s.qt),
		fs:    pick(s.fs),
		u2:    pick(s.u2),
		gamma: pick(s.gamma),
	}
}

// Len returns the number of measurement rows after empty-row removal.
func (s MeasurementSeries) Len() int {
	return len(s.depth)
}

// Depths returns a copy of the depth channel [ft].
func (s MeasurementSeries) Depths() []float64 {
	out := make([]float64, len(s.depth))
	copy(out, s.depth)
	return out
}

// Channel returns a copy of a named channel ("qc", "qt", "fs", "u2", "gamma")
// and whether the channel is present.
func (s MeasurementSeries) Channel(name string) ([]float64, bool) {
	var ch []float64
	switch name {
	case "qc":
		ch = s.qc
	case "qt":
		ch = s.qt
	case "fs":
		ch = s.fs
	case "u2":
		ch = s.u2
	case "gamma":
		ch = s.gamma
	default:
		return nil, false
	}
	if ch == nil {
		return nil, false
	}
	out := make([]float64, len(ch))
	copy(out, ch)
	return out, true
}

// Rows returns the series as OpenGround records for bulk insertion, one
// (header, value) pair list per row sorted by header, with the foreign-key
// column set to the owning test-general record's cloud id. Missing readings
// are omitted from their row.
func (s MeasurementSeries) Rows(generalID string) [][]openground.DataField {
	out := make([][]openground.DataField, 0, len(s.depth))
	for i := range s.depth {
		row := []openground.DataField{
			{Header: headerGeneralLink, Value: generalID},
			{Header: headerDepth, Value: formatFloat(s.depth[i])},
		}
		row = appendReading(row, headerQC, s.qc, i)
		row = appendReading(row, headerQT, s.qt, i)
		row = appendReading(row, headerFS, s.fs, i)
		row = appendReading(row, headerU2, s.u2, i)
		row = appendReading(row, headerGamma, s.gamma, i)
		sort.Slice(row, func(a, b int) bool { return row[a].Header < row[b].Header })
		out = append(out, row)
	}
	return out
}

func appendReading(row []openground.DataField, header string, ch []float64, i int) []openground.DataField {
	if ch == nil || math.IsNaN(ch[i]) {
		return row
	}
	return append(row, openground.DataField{Header: header, Value: formatFloat(ch[i])})
}
