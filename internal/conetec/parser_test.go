package conetec

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// testGrid returns a minimal conforming ConeTec export grid, including the
// vendor's leading blank column.
func testGrid() [][]string {
	return [][]string{
		{"", "ConeTec Investigations Ltd."},
		{"", "Job No:", "24-53-28244"},
		{"", "Run ID:", "1726602193"},
		{"", "Cone ID:", "652:T1500F15U35"},
		{"", "Tip Net Area Ratio:", "0.80"},
		{"", "CPT Date:", "24-09-17"},
		{"", "CPT Time:", "14:23"},
		{"", "Project:", "NBB Bridge"},
		{""},
		{"", "Depth", "Depth", "qc", "qt", "fs", "u", "Rf"},
		{"", "m", "ft", "tsf", "tsf", "tsf", "ft", "%"},
		{"", "0.025", "0.08202", "24.718", "24.71592117", "0.24", "-0.3330", "0.97"},
		{"", "0.050", "0.16404", "185.459", "185.46112877", "0.29", "0.3410", "0.16"},
		{"", "0.075", "0.24606", "337.209", "337.21475579", "0.385", "0.9220", "0.11"},
	}
}

func TestParseConformingGrid(t *testing.T) {
	rec, series, err := Parse(testGrid(), "24-53-28244_SPBR-B13E-1A-BSC.XLS", "SPBR-B13E-1A")
	require.NoError(t, err)

	assert.Equal(t, "SPBR-B13E-1A", rec.Name)
	assert.Equal(t, "24-53-28244_SPBR-B13E-1A-BSC.XLS", rec.SourceFile)
	assert.Equal(t, "EC", rec.ConeType)
	assert.Equal(t, "ConeTec", rec.Subcontractor)
	assert.Equal(t, 0.80, rec.AreaRatio)
	assert.Equal(t, "652:T1500F15U35", rec.ConeID)
	assert.Equal(t, "1726602193", rec.TestID)
	assert.Equal(t, "2024-09-17T14:23:00Z", rec.Timestamp)
	assert.Nil(t, rec.DepthGroundwater)
	assert.Nil(t, rec.PenRate)
	assert.Nil(t, rec.PreDrillDepth)
	assert.Empty(t, rec.Remarks)

	require.Equal(t, 3, series.Len())
	depths := series.Depths()
	assert.InDelta(t, 0.08202, depths[0], 1e-9)

	qc, ok := series.Channel("qc")
	require.True(t, ok)
	assert.InDelta(t, 24.718, qc[0], 1e-9)

	// Pore pressure is converted from ft of water to tsf exactly once.
	u2, ok := series.Channel("u2")
	require.True(t, ok)
	assert.InDelta(t, -0.3330*62.4/2000, u2[0], 1e-9)
	assert.InDelta(t, 0.3410*62.4/2000, u2[1], 1e-9)
}

func TestParseMissingSeparatorRow(t *testing.T) {
	grid := testGrid()
	grid[8] = []string{"", "Operator:", "JD"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "no blank separator row")
}

func TestParseWrongUnits(t *testing.T) {
	grid := testGrid()
	grid[10] = []string{"", "m", "ft", "psi", "tsf", "tsf", "ft", "%"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "units")
	assert.Contains(t, fe.Error(), "psi")
}

func TestParseWrongColumns(t *testing.T) {
	grid := testGrid()
	grid[9] = []string{"", "Depth", "Depth", "qc", "qt", "fs", "u2", "Rf"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "columns")
}

func TestParseVendorSignatureMissing(t *testing.T) {
	grid := testGrid()
	grid[0] = []string{"", "Acme Drilling LLC"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "vendor signature")
}

func TestParseUnknownMetadataField(t *testing.T) {
	grid := testGrid()
	grid[7] = []string{"", "Water Table Depth:", "12.5"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "Water Table Depth:")
}

func TestParseSentinelBecomesMissing(t *testing.T) {
	grid := testGrid()
	grid[13] = []string{"", "0.075", "0.24606", "337.209", "337.21475579", "0.385", "-9999", "0.11"}

	_, series, err := Parse(grid, "ok.XLS", "CPT-1")
	require.NoError(t, err)
	u2, ok := series.Channel("u2")
	require.True(t, ok)
	assert.True(t, math.IsNaN(u2[2]), "sentinel reading must become missing, not a literal value")
}

func TestParseDropsAllMissingTrailingRows(t *testing.T) {
	grid := append(testGrid(),
		[]string{"", "", "", "", "", "", "", ""},
	)
	// A trailing blank row would shift the separator; pad with sentinels instead.
	grid[len(grid)-1] = []string{"", "-9999", "-9999", "-9999", "-9999", "-9999", "-9999", "-9999"}

	_, series, err := Parse(grid, "ok.XLS", "CPT-1")
	require.NoError(t, err)
	assert.Equal(t, 3, series.Len())
}

func TestParseNonNumericData(t *testing.T) {
	grid := testGrid()
	grid[12] = []string{"", "0.050", "0.16404", "refusal", "185.46", "0.29", "0.34", "0.16"}

	_, _, err := Parse(grid, "bad.XLS", "CPT-1")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "non-numeric")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "24-53-28244_SPBR-B13E-1A-BSC.xlsx")
	writeGridFile(t, path, testGrid())

	rec, series, err := ParseFile(path, "SPBR-B13E-1A")
	require.NoError(t, err)
	assert.Equal(t, "24-53-28244_SPBR-B13E-1A-BSC.xlsx", rec.SourceFile)
	assert.Equal(t, "1726602193", rec.TestID)
	assert.Equal(t, 3, series.Len())
}

func writeGridFile(t *testing.T, path string, grid [][]string) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range grid {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &vals))
	}
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Write(out))
	require.NoError(t, out.Close())
	require.NoError(t, f.Close())
}

// Deliveries mix the vendor's native BIFF .xls with re-saved xlsx files; the
// decoder is chosen by container magic, never by extension.
func TestDetectLegacyWorkbook(t *testing.T) {
	dir := t.TempDir()

	legacy := filepath.Join(dir, "export.XLS")
	header := append(append([]byte{}, oleMagic...), make([]byte, 24)...)
	require.NoError(t, os.WriteFile(legacy, header, 0o644))
	ok, err := isLegacyWorkbook(legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	// An xlsx saved under the legacy extension still routes to the zip decoder.
	modern := filepath.Join(dir, "export2.XLS")
	writeGridFile(t, modern, testGrid())
	ok, err = isLegacyWorkbook(modern)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, _, err := ParseFile(modern, "SPBR-B13E-1A")
	require.NoError(t, err)
	assert.Equal(t, "1726602193", rec.TestID)
}

func TestParseFileTruncatedLegacyWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xls")
	header := append(append([]byte{}, oleMagic...), make([]byte, 24)...)
	require.NoError(t, os.WriteFile(path, header, 0o644))

	_, _, err := ParseFile(path, "CPT-1")
	require.Error(t, err)
}
