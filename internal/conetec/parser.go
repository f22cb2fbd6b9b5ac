// Package conetec decodes ConeTec CPT spreadsheet exports: a fixed two-block
// layout with a field/value metadata block, a blank separator row, a column
// and units header pair, and the depth-indexed data block.
package conetec

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/cpt"
)

const (
	// Vendor signature variants accepted in the first metadata cell.
	vendorName    = "ConeTec"
	vendorNameAlt = "CPT Inc."

	coneTypeElectric = "EC"

	// Readings at or below this are export sentinels, not measurements.
	sentinelThreshold = -9000

	// Pore pressure arrives as feet of water; OpenGround stores tsf.
	porePressureToTSF = 62.4 / 2000
)

// expectedColumns and expectedUnits are the exact header rows the export must
// carry (after the leading index column is discarded). Any drift fails the
// parse rather than being silently accepted.
var (
	expectedColumns = []string{"Depth", "Depth", "qc", "qt", "fs", "u", "Rf"}
	expectedUnits   = []string{"m", "ft", "tsf", "tsf", "tsf", "ft", "%"}
)

// allowedMetadataFields is the full set of metadata field names ConeTec
// exports are known to carry. An unknown name is schema drift and fails the
// parse before any remote write.
var allowedMetadataFields = map[string]struct{}{
	"Interpretation Format:":                {},
	"Run ID:":                               {},
	"Job No:":                               {},
	"Client:":                               {},
	"Project:":                              {},
	"Facility:":                             {},
	"Sounding ID:":                          {},
	"Cone ID:":                              {},
	"Operator:":                             {},
	"CPT Date:":                             {},
	"CPT Time:":                             {},
	"CPT File:":                             {},
	"Tip Units:":                            {},
	"Sleeve Units:":                         {},
	"PP Units:":                             {},
	"Tip Conversion to bar:":                {},
	"Sleeve Conversion to bar:":             {},
	"PP Conversion to meters:":              {},
	"Easting / Long:":                       {},
	"Northing / Lat:":                       {},
	"Elevation:":                            {},
	"Tip Net Area Ratio:":                   {},
	"Averaging Interval:":                   {},
	"Col  5 (Extra Module) Parameter":       {},
	"Col  5 (Extra Module) Units":           {},
	"Coord Source:":                         {},
	"Coord Type:":                           {},
	"UTM Zone:":                             {},
	"Norm. SBT Charts extended for Low Fr:": {},
	"Extended Y Axis on SBT Charts:":        {},
}

// timestampLayouts are the date/time renderings observed in ConeTec exports.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/06 15:04:05",
	"01/02/06 15:04",
	"1/2/2006 15:04",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"06-01-02 15:04",
}

// ParseFile decodes one ConeTec export file. name becomes the location/test
// identifier of the resulting record.
func ParseFile(path, name string) (cpt.TestRecord, cpt.MeasurementSeries, error) {
	grid, err := readGrid(path)
	if err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}
	return Parse(grid, filepath.Base(path), name)
}

// oleMagic is the compound-file signature legacy BIFF .xls workbooks start
// with; xlsx-family workbooks are zip containers.
var oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// readGrid loads the first sheet of a workbook as a raw cell grid. ConeTec
// deliveries arrive in both the vendor's native .xls and re-saved xlsx forms;
// the container magic decides the decoder, not the file extension.
func readGrid(path string) ([][]string, error) {
	legacy, err := isLegacyWorkbook(path)
	if err != nil {
		return nil, err
	}
	if legacy {
		return readLegacyGrid(path)
	}
	return readZipGrid(path)
}

func isLegacyWorkbook(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	magic := make([]byte, len(oleMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return false, fmt.Errorf("read %s header: %w", path, err)
	}
	return bytes.Equal(magic, oleMagic), nil
}

func readZipGrid(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, formatErrorf(filepath.Base(path), "workbook has no sheets")
	}
	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return grid, nil
}

func readLegacyGrid(path string) ([][]string, error) {
	wb, closer, err := xls.OpenWithCloser(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = closer.Close()
	}()

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, formatErrorf(filepath.Base(path), "workbook has no sheets")
	}
	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

// Parse decodes a raw cell grid in the ConeTec two-block layout. source is
// the file name carried into the record; name is the location/test
// identifier.
func Parse(grid [][]string, source, name string) (cpt.TestRecord, cpt.MeasurementSeries, error) {
	rows := dropLeadingColumn(grid)

	boundary := lastBlankRow(rows)
	if boundary <= 0 {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, formatErrorf(source, "no blank separator row between metadata and data")
	}

	meta, err := parseMetadata(rows[:boundary], source)
	if err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}

	if err := checkHeaderRow(rows, boundary+1, expectedColumns, "columns", source); err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}
	if err := checkHeaderRow(rows, boundary+2, expectedUnits, "units", source); err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}

	rec, err := buildRecord(meta, source, name)
	if err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}

	series, err := parseData(rows[boundary+3:], source)
	if err != nil {
		return cpt.TestRecord{}, cpt.MeasurementSeries{}, err
	}
	return rec, series, nil
}

// dropLeadingColumn removes the vendor format's leading index/blank column.
func dropLeadingColumn(grid [][]string) [][]string {
	out := make([][]string, len(grid))
	for i, row := range grid {
		if len(row) > 0 {
			out[i] = row[1:]
		}
	}
	return out
}

// lastBlankRow returns the index of the last row that is blank across all
// columns, or -1 when no such row exists.
func lastBlankRow(rows [][]string) int {
	last := -1
	for i, row := range rows {
		if isBlankRow(row) {
			last = i
		}
	}
	return last
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

type metadata struct {
	// firstField is the raw first field-name cell, checked for the vendor
	// signature before blank-value rows are dropped.
	firstField string
	values     map[string]string
}

func parseMetadata(block [][]string, source string) (metadata, error) {
	// Reduce the block to its two populated columns (field name, value).
	cols := populatedColumns(block)
	if len(cols) != 2 {
		return metadata{}, formatErrorf(source, "metadata block has %d populated columns, want 2", len(cols))
	}
	fieldCol, valueCol := cols[0], cols[1]

	m := metadata{values: make(map[string]string)}
	for i, row := range block {
		field := strings.TrimSpace(cellAt(row, fieldCol))
		value := strings.TrimSpace(cellAt(row, valueCol))
		if i == 0 {
			m.firstField = field
		}
		if field == "" || value == "" {
			continue
		}
		m.values[field] = value
	}

	if !strings.Contains(m.firstField, vendorName) && !strings.Contains(m.firstField, vendorNameAlt) {
		return metadata{}, formatErrorf(source, "vendor signature not found in first metadata cell (got %q)", m.firstField)
	}

	var unknown []string
	for field := range m.values {
		if _, ok := allowedMetadataFields[field]; !ok {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		return metadata{}, &SchemaError{File: source, Unknown: unknown}
	}
	return m, nil
}

// populatedColumns returns the indexes of columns that are non-blank in at
// least one row of the block.
func populatedColumns(block [][]string) []int {
	width := 0
	for _, row := range block {
		if len(row) > width {
			width = len(row)
		}
	}
	var cols []int
	for j := 0; j < width; j++ {
		for _, row := range block {
			if strings.TrimSpace(cellAt(row, j)) != "" {
				cols = append(cols, j)
				break
			}
		}
	}
	return cols
}

func cellAt(row []string, j int) string {
	if j < len(row) {
		return row[j]
	}
	return ""
}

func checkHeaderRow(rows [][]string, idx int, want []string, kind, source string) error {
	if idx >= len(rows) {
		return formatErrorf(source, "missing %s header row", kind)
	}
	got := make([]string, len(want))
	for j := range want {
		got[j] = strings.TrimSpace(cellAt(rows[idx], j))
	}
	for j := range want {
		if got[j] != want[j] {
			return formatErrorf(source, "parsed %s differ: got %v, want %v", kind, got, want)
		}
	}
	// Extra trailing columns are drift too.
	for j := len(want); j < len(rows[idx]); j++ {
		if strings.TrimSpace(rows[idx][j]) != "" {
			return formatErrorf(source, "parsed %s differ: unexpected trailing column %q", kind, rows[idx][j])
		}
	}
	return nil
}

func buildRecord(m metadata, source, name string) (cpt.TestRecord, error) {
	required := []string{"Tip Net Area Ratio:", "Cone ID:", "Run ID:", "CPT Date:", "CPT Time:"}
	for _, field := range required {
		if _, ok := m.values[field]; !ok {
			return cpt.TestRecord{}, formatErrorf(source, "metadata field %q is missing", field)
		}
	}

	areaRatio, err := strconv.ParseFloat(m.values["Tip Net Area Ratio:"], 64)
	if err != nil {
		return cpt.TestRecord{}, formatErrorf(source, "invalid Tip Net Area Ratio %q", m.values["Tip Net Area Ratio:"])
	}

	timestamp, err := parseTimestamp(m.values["CPT Date:"], m.values["CPT Time:"])
	if err != nil {
		return cpt.TestRecord{}, formatErrorf(source, "%v", err)
	}

	rec := cpt.TestRecord{
		Name:       name,
		SourceFile: source,
		Timestamp:  timestamp,
		AreaRatio:  areaRatio,
		ConeID:     m.values["Cone ID:"],
		// ConeTec exports never carry groundwater depth, penetration rate, or
		// remarks; those stay absent.
		ConeType:      coneTypeElectric,
		Subcontractor: vendorName,
		TestID:        m.values["Run ID:"],
	}
	if err := rec.Validate(); err != nil {
		return cpt.TestRecord{}, formatErrorf(source, "%v", err)
	}
	return rec, nil
}

func parseTimestamp(date, timeOfDay string) (string, error) {
	combined := strings.TrimSpace(date) + " " + strings.TrimSpace(timeOfDay)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, combined); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z"), nil
		}
	}
	return "", fmt.Errorf("unrecognized CPT Date/Time %q", combined)
}

// Data block column positions after the leading column is discarded:
// Depth[m], Depth[ft], qc, qt, fs, u, Rf. The meter-based depth and the
// derived Rf column are dropped.
const (
	colDepthFt = 1
	colQC      = 2
	colQT      = 3
	colFS      = 4
	colU       = 5
)

func parseData(rows [][]string, source string) (cpt.MeasurementSeries, error) {
	if len(rows) == 0 {
		return cpt.MeasurementSeries{}, formatErrorf(source, "data block is empty")
	}

	n := len(rows)
	depth := make([]float64, n)
	qc := make([]float64, n)
	qt := make([]float64, n)
	fs := make([]float64, n)
	u2 := make([]float64, n)

	for i, row := range rows {
		var err error
		if depth[i], err = parseReading(row, colDepthFt); err != nil {
			return cpt.MeasurementSeries{}, formatErrorf(source, "data row %d: %v", i+1, err)
		}
		if qc[i], err = parseReading(row, colQC); err != nil {
			return cpt.MeasurementSeries{}, formatErrorf(source, "data row %d: %v", i+1, err)
		}
		if qt[i], err = parseReading(row, colQT); err != nil {
			return cpt.MeasurementSeries{}, formatErrorf(source, "data row %d: %v", i+1, err)
		}
		if fs[i], err = parseReading(row, colFS); err != nil {
			return cpt.MeasurementSeries{}, formatErrorf(source, "data row %d: %v", i+1, err)
		}
		if u2[i], err = parseReading(row, colU); err != nil {
			return cpt.MeasurementSeries{}, formatErrorf(source, "data row %d: %v", i+1, err)
		}
		if !math.IsNaN(u2[i]) {
			u2[i] *= porePressureToTSF
		}
	}

	series, err := cpt.NewMeasurementSeries(depth, qc, qt, fs, u2, nil)
	if err != nil {
		return cpt.MeasurementSeries{}, fmt.Errorf("%s: %w", source, err)
	}
	return series, nil
}

// parseReading coerces one cell to a float. Blank cells and sentinel values
// at or below -9000 are missing, not readings.
func parseReading(row []string, j int) (float64, error) {
	raw := strings.TrimSpace(cellAt(row, j))
	if raw == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q in column %d", raw, j+1)
	}
	if v <= sentinelThreshold {
		return math.NaN(), nil
	}
	return v, nil
}
