// Package mockopenground implements a minimal OpenGround-like API surface for
// integration tests and the local harness: token endpoint, group listings,
// record create/delete with the platform's cascade rule, bulk insert, and the
// generic query endpoint.
package mockopenground

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

type dataField struct {
	Header string `json:"Header"`
	Value  string `json:"Value"`
}

type storedRecord struct {
	ID     string
	Group  string
	Fields map[string]string
}

func (r storedRecord) field(header string) string {
	return r.Fields[header]
}

// Server holds per-project records grouped by OpenGround table name.
type Server struct {
	mu       sync.Mutex
	calls    []Call
	projects map[string]string          // name -> id
	records  map[string][]*storedRecord // projectID -> records (all groups)
	token    string

	bulkCalls    int
	failBulk     bool
	failBulkCode int
}

// New constructs a mock server with one project.
func New(projectName, projectID string) *Server {
	return &Server{
		projects: map[string]string{projectName: projectID},
		records:  map[string][]*storedRecord{projectID: {}},
		token:    "mock-token-" + uuid.NewString(),
	}
}

// Token returns the bearer token the mock token endpoint currently issues.
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// FailBulk makes subsequent bulk-insert calls fail with the given status.
func (s *Server) FailBulk(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBulk = true
	s.failBulkCode = status
}

// UnfailBulk restores normal bulk-insert behavior.
func (s *Server) UnfailBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBulk = false
}

// BulkCalls returns the number of bulk-insert requests received.
func (s *Server) BulkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkCalls
}

// Calls returns a snapshot of requests made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// RecordCount returns the number of stored records in a group.
func (s *Server) RecordCount(projectID, group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records[projectID] {
		if r.Group == group {
			n++
		}
	}
	return n
}

// Handler returns an http.Handler serving the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", s.handleToken)
	mux.HandleFunc("/api/v1.0/data/", s.handleData)
	return mux
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("grant_type") != "client_credentials" {
		http.Error(w, "unsupported grant type", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(r.PostFormValue("client_id")) == "" || strings.TrimSpace(r.PostFormValue("client_secret")) == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": s.Token(),
		"expires_in":   3600,
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+s.Token() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1.0/data/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "projects" && r.Method == http.MethodGet:
		s.handleListProjects(w)
	case rest == "query" && r.Method == http.MethodPost:
		s.handleQuery(w, r)
	case len(parts) == 4 && parts[0] == "projects" && parts[2] == "groups":
		projectID, group := parts[1], parts[3]
		switch r.Method {
		case http.MethodGet:
			s.handleListGroup(w, projectID, group)
		case http.MethodPost:
			s.handleCreate(w, r, projectID, group)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 5 && parts[0] == "projects" && parts[2] == "groups" && parts[4] == "delete" && r.Method == http.MethodPut:
		s.handleDelete(w, r, parts[1], parts[3])
	case len(parts) == 5 && parts[0] == "projects" && parts[2] == "groups" && parts[4] == "bulk" && r.Method == http.MethodPost:
		s.handleBulk(w, r, parts[1], parts[3])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.projects))
	for name, id := range s.projects {
		out = append(out, map[string]any{
			"Id":         id,
			"DataFields": []dataField{{Header: "ProjectID", Value: name}},
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleListGroup(w http.ResponseWriter, projectID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0)
	for _, rec := range s.records[projectID] {
		if rec.Group != group {
			continue
		}
		fields := make([]dataField, 0, len(rec.Fields))
		for h, v := range rec.Fields {
			fields = append(fields, dataField{Header: group + "." + h, Value: v})
		}
		out = append(out, map[string]any{"Id": rec.ID, "DataFields": fields})
	}
	writeJSON(w, out)
}

type createRequest struct {
	Group      string      `json:"Group"`
	DataFields []dataField `json:"DataFields"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, projectID, group string) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad create payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[projectID]; !ok {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}
	rec := s.insertLocked(projectID, group, req.DataFields)
	writeJSON(w, map[string]string{"Id": rec.ID})
}

func (s *Server) insertLocked(projectID, group string, fields []dataField) *storedRecord {
	rec := &storedRecord{
		ID:     uuid.NewString(),
		Group:  group,
		Fields: make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		rec.Fields[f.Header] = f.Value
	}
	s.records[projectID] = append(s.records[projectID], rec)
	return rec
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, projectID, group string) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		http.Error(w, "bad delete payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.deleteLocked(projectID, group, id)
	}
	w.WriteHeader(http.StatusOK)
}

// deleteLocked removes a record and applies the platform's referential
// cascade: a location takes its test-general record with it, and a
// test-general record takes its measurement rows.
func (s *Server) deleteLocked(projectID, group, id string) {
	var victim *storedRecord
	kept := s.records[projectID][:0]
	for _, rec := range s.records[projectID] {
		if rec.Group == group && rec.ID == id {
			victim = rec
			continue
		}
		kept = append(kept, rec)
	}
	s.records[projectID] = kept
	if victim == nil {
		return
	}

	switch group {
	case "LocationDetails":
		locName := victim.field("LocationID")
		for _, rec := range append([]*storedRecord(nil), s.records[projectID]...) {
			if rec.Group == "StaticConePenetrationGeneral" && rec.field("uui_LocationDetails") == locName {
				s.deleteLocked(projectID, rec.Group, rec.ID)
			}
		}
	case "StaticConePenetrationGeneral":
		kept := s.records[projectID][:0]
		for _, rec := range s.records[projectID] {
			if rec.Group == "StaticConePenetrationData" && rec.field("uui_StaticConePenetrationGeneral") == victim.ID {
				continue
			}
			kept = append(kept, rec)
		}
		s.records[projectID] = kept
	}
}

type bulkPayload struct {
	DataEntries []createRequest `json:"DataEntries"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, projectID, group string) {
	var req bulkPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad bulk payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	if s.failBulk {
		code := s.failBulkCode
		if code == 0 {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, "bulk insert unavailable", code)
		return
	}
	if len(req.DataEntries) > 1000 {
		http.Error(w, fmt.Sprintf("bulk limit exceeded: %d entries", len(req.DataEntries)), http.StatusBadRequest)
		return
	}
	for _, entry := range req.DataEntries {
		s.insertLocked(projectID, group, entry.DataFields)
	}
	w.WriteHeader(http.StatusOK)
}

type queryRequest struct {
	Projections []struct {
		Group  string `json:"Group"`
		Header string `json:"Header"`
	} `json:"Projections"`
	Group    string   `json:"Group"`
	Projects []string `json:"Projects"`
}

// handleQuery supports the two query shapes the pipeline issues: test-general
// listings and measurement-row listings, both projected with the owning
// location name.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad query payload", http.StatusBadRequest)
		return
	}
	if len(req.Projects) != 1 {
		http.Error(w, "query must target one project", http.StatusBadRequest)
		return
	}
	projectID := req.Projects[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, 0)
	for _, rec := range s.records[projectID] {
		if rec.Group != req.Group {
			continue
		}
		locName, ok := s.locationNameLocked(projectID, rec)
		if !ok {
			continue
		}
		fields := []dataField{{Header: "LocationDetails.LocationID", Value: locName}}
		for _, p := range req.Projections {
			if p.Group == rec.Group {
				if v, present := rec.Fields[p.Header]; present {
					fields = append(fields, dataField{Header: rec.Group + "." + p.Header, Value: v})
				}
			}
		}
		out = append(out, map[string]any{"Id": rec.ID, "DataFields": fields})
	}
	writeJSON(w, out)
}

func (s *Server) locationNameLocked(projectID string, rec *storedRecord) (string, bool) {
	switch rec.Group {
	case "StaticConePenetrationGeneral":
		return rec.field("uui_LocationDetails"), true
	case "StaticConePenetrationData":
		generalID := rec.field("uui_StaticConePenetrationGeneral")
		for _, g := range s.records[projectID] {
			if g.Group == "StaticConePenetrationGeneral" && g.ID == generalID {
				return g.field("uui_LocationDetails"), true
			}
		}
		return "", false
	default:
		return rec.field("LocationID"), true
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
