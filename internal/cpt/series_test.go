package cpt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func TestNewMeasurementSeriesDropsEmptyRows(t *testing.T) {
	s, err := NewMeasurementSeries(
		[]float64{0.082, 0.164, nan, nan},
		[]float64{24.7, 185.5, nan, nan},
		nil,
		[]float64{0.24, 0.29, nan, nan},
		[]float64{0.01, 0.02, nan, nan},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{0.082, 0.164}, s.Depths())
}

func TestNewMeasurementSeriesRejectsBadDepths(t *testing.T) {
	_, err := NewMeasurementSeries(
		[]float64{0.1, 0.1},
		[]float64{1, 2},
		nil, nil, nil, nil,
	)
	require.ErrorContains(t, err, "duplicate depth")

	_, err = NewMeasurementSeries(
		[]float64{0.2, 0.1},
		[]float64{1, 2},
		nil, nil, nil, nil,
	)
	require.ErrorContains(t, err, "depth decreases")

	_, err = NewMeasurementSeries(
		[]float64{0.1, nan},
		[]float64{1, 2},
		nil, nil, nil, nil,
	)
	require.ErrorContains(t, err, "missing depth")
}

func TestNewMeasurementSeriesRequiresResistanceChannel(t *testing.T) {
	_, err := NewMeasurementSeries([]float64{0.1}, nil, nil, []float64{0.2}, nil, nil)
	require.ErrorContains(t, err, "at least one of qc/qt")

	// qt alone satisfies the rule: some soundings carry only corrected resistance.
	s, err := NewMeasurementSeries([]float64{0.1}, nil, []float64{24.7}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestRowsOmitMissingAndCarryForeignKey(t *testing.T) {
	s, err := NewMeasurementSeries(
		[]float64{0.082, 0.164},
		[]float64{24.7, nan},
		[]float64{24.71, 185.46},
		[]float64{0.24, 0.29},
		[]float64{nan, 0.0106},
		nil,
	)
	require.NoError(t, err)

	rows := s.Rows("general-123")
	require.Len(t, rows, 2)

	first := map[string]string{}
	for _, f := range rows[0] {
		first[f.Header] = f.Value
	}
	assert.Equal(t, "general-123", first["uui_StaticConePenetrationGeneral"])
	assert.Equal(t, "0.082", first["Depth"])
	assert.Equal(t, "24.7", first["ConeResistance"])
	_, hasU2 := first["ShoulderPorewaterPressure"]
	assert.False(t, hasU2, "missing u2 reading must be omitted")

	second := map[string]string{}
	for _, f := range rows[1] {
		second[f.Header] = f.Value
	}
	_, hasQC := second["ConeResistance"]
	assert.False(t, hasQC, "missing qc reading must be omitted")
	assert.Equal(t, "185.46", second["CorrectedConeResistance"])
}
