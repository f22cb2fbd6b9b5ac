package cpt

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() TestRecord {
	return TestRecord{
		Name:          "SPBR-B13E-1A",
		SourceFile:    "24-53-28244_SPBR-B13E-1A-BSC.XLS",
		Timestamp:     "2024-09-17T14:23:00Z",
		AreaRatio:     0.80,
		ConeID:        "652:T1500F15U35",
		ConeType:      "EC",
		Subcontractor: "ConeTec",
		TestID:        "1726602193",
	}
}

func TestTestRecordValidate(t *testing.T) {
	require.NoError(t, validRecord().Validate())

	rec := validRecord()
	rec.ConeID = ""
	require.ErrorContains(t, rec.Validate(), "cone id is required")

	rec = validRecord()
	rec.AreaRatio = 0
	require.ErrorContains(t, rec.Validate(), "area ratio")
}

func TestTestRecordDataFields(t *testing.T) {
	fields := validRecord().DataFields()

	require.True(t, sort.SliceIsSorted(fields, func(i, j int) bool {
		return fields[i].Header < fields[j].Header
	}), "fields must be sorted by header")

	byHeader := map[string]string{}
	for _, f := range fields {
		byHeader[f.Header] = f.Value
	}
	assert.Equal(t, "SPBR-B13E-1A", byHeader["uui_LocationDetails"])
	assert.Equal(t, "0.8", byHeader["ConeAreaRatio"])
	assert.Equal(t, "EC", byHeader["uui_TestType"])
	assert.Equal(t, "1726602193", byHeader["TestNumber"])
	assert.Equal(t, "2024-09-17T14:23:00Z", byHeader["DateStart"])

	// Absent optionals are omitted, never sent as empty strings.
	for _, absent := range []string{"DepthGroundwater", "NominalRateOfPenetration", "PreDrillDepth", "Remarks"} {
		_, ok := byHeader[absent]
		assert.False(t, ok, "%s should be omitted", absent)
	}

	gwt := 12.5
	rec := validRecord()
	rec.DepthGroundwater = &gwt
	rec.Remarks = "pre-drilled through fill"
	fields = rec.DataFields()
	byHeader = map[string]string{}
	for _, f := range fields {
		byHeader[f.Header] = f.Value
	}
	assert.Equal(t, "12.5", byHeader["DepthGroundwater"])
	assert.Equal(t, "pre-drilled through fill", byHeader["Remarks"])
}
