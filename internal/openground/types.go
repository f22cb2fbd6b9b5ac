package openground

// Group names for the OpenGround tables this pipeline touches.
const (
	GroupLocationDetails = "LocationDetails"
	GroupCPTGeneral      = "StaticConePenetrationGeneral"
	GroupCPTData         = "StaticConePenetrationData"
)

// DataField is one (header, value) pair in an OpenGround record payload.
// Absent attributes are omitted from the slice, never sent as empty strings.
type DataField struct {
	Header string `json:"Header"`
	Value  string `json:"Value"`
}

// record is the wire shape OpenGround returns for group listings and queries.
type record struct {
	ID         string      `json:"Id"`
	DataFields []DataField `json:"DataFields"`
}

// field returns the value for a header, matching either the bare header or a
// group-qualified one ("LocationDetails.LocationID").
func (r record) field(header string) (string, bool) {
	for _, f := range r.DataFields {
		name := f.Header
		if i := lastDot(name); i >= 0 {
			name = name[i+1:]
		}
		if name == header {
			return f.Value, true
		}
	}
	return "", false
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// queryProjection selects one column in a cross-group query.
type queryProjection struct {
	Group  string `json:"Group"`
	Header string `json:"Header"`
}

// queryRequest is the payload for the generic /data/query endpoint.
type queryRequest struct {
	Projections []queryProjection `json:"Projections"`
	Group       string            `json:"Group"`
	Projects    []string          `json:"Projects"`
}

type createRecordRequest struct {
	Group      string      `json:"Group"`
	DataFields []DataField `json:"DataFields"`
}

type bulkEntry struct {
	Group      string      `json:"Group"`
	DataFields []DataField `json:"DataFields"`
}

type bulkRequest struct {
	DataEntries []bulkEntry `json:"DataEntries"`
}
