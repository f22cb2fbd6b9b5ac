// Package cpt holds the typed, immutable record model for one Cone
// Penetration Test: the test-general metadata and its depth-indexed
// measurement series, plus the static mapping onto OpenGround's schema.
package cpt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/openground"
)

// TestRecord models one row of OpenGround's StaticConePenetrationGeneral
// table. Optional attributes are pointers (or empty strings) and are omitted
// from the remote record entirely when absent.
type TestRecord struct {
	// Name identifies the test and its location (LocationID in OpenGround).
	Name string

	SourceFile string
	// Timestamp is ISO 8601 UTC with a trailing "Z".
	Timestamp string
	// AreaRatio is the cone tip net area ratio (unitless).
	AreaRatio float64
	ConeID    string
	// ConeType is an enum-like code, e.g. "EC" for electric cone.
	ConeType      string
	Subcontractor string
	TestID        string

	// DepthGroundwater [ft], PenRate [cm/s], and PreDrillDepth [ft] are not
	// present in ConeTec exports; nil means absent.
	DepthGroundwater *float64
	PenRate          *float64
	PreDrillDepth    *float64
	Remarks          string
}

// generalHeaders is the static attribute -> OpenGround header mapping for the
// test-general record. Adding or removing a field here is a deliberate,
// reviewable schema change.
var generalHeaders = struct {
	sourceFile       string
	name             string
	areaRatio        string
	coneID           string
	depthGroundwater string
	penRate          string
	remarks          string
	subcontractor    string
	testID           string
	coneType         string
	preDrillDepth    string
	timestamp        string
}{
	sourceFile:       "AssociatedFileReference",
	name:             "uui_LocationDetails",
	areaRatio:        "ConeAreaRatio",
	coneID:           "ConeReference",
	depthGroundwater: "DepthGroundwater",
	penRate:          "NominalRateOfPenetration",
	remarks:          "Remarks",
	subcontractor:    "Subcontractor",
	testID:           "TestNumber",
	coneType:         "uui_TestType",
	preDrillDepth:    "PreDrillDepth",
	timestamp:        "DateStart",
}

// Validate checks that every non-optional attribute is present and non-empty.
func (r TestRecord) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"source file", r.SourceFile},
		{"timestamp", r.Timestamp},
		{"cone id", r.ConeID},
		{"cone type", r.ConeType},
		{"subcontractor", r.Subcontractor},
		{"test id", r.TestID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("test record: %s is required", f.name)
		}
	}
	if r.AreaRatio <= 0 {
		return fmt.Errorf("test record: area ratio must be positive (got %g)", r.AreaRatio)
	}
	return nil
}

// DataFields returns the test-general record as OpenGround (header, value)
// pairs sorted by header. Absent optional attributes are omitted.
func (r TestRecord) DataFields() []openground.DataField {
	fields := []openground.DataField{
		{Header: generalHeaders.sourceFile, Value: r.SourceFile},
		{Header: generalHeaders.name, Value: r.Name},
		{Header: generalHeaders.areaRatio, Value: formatFloat(r.AreaRatio)},
		{Header: generalHeaders.coneID, Value: r.ConeID},
		{Header: generalHeaders.subcontractor, Value: r.Subcontractor},
		{Header: generalHeaders.testID, Value: r.TestID},
		{Header: generalHeaders.coneType, Value: r.ConeType},
		{Header: generalHeaders.timestamp, Value: r.Timestamp},
	}
	if r.DepthGroundwater != nil {
		fields = append(fields, openground.DataField{Header: generalHeaders.depthGroundwater, Value: formatFloat(*r.DepthGroundwater)})
	}
	if r.PenRate != nil {
		fields = append(fields, openground.DataField{Header: generalHeaders.penRate, Value: formatFloat(*r.PenRate)})
	}
	if r.PreDrillDepth != nil {
		fields = append(fields, openground.DataField{Header: generalHeaders.preDrillDepth, Value: formatFloat(*r.PreDrillDepth)})
	}
	if strings.TrimSpace(r.Remarks) != "" {
		fields = append(fields, openground.DataField{Header: generalHeaders.remarks, Value: r.Remarks})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Header < fields[j].Header })
	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
