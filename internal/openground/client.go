package openground

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultTokenURL = "https://imsoidc.bentley.com/connect/token"

	// keynetixCloudHeader is a fixed product header required by the API.
	keynetixCloudHeader = "U3VwZXJCYXRtYW5GYXN0"

	userAgent = "AA+ET"

	// maxBulkRecords is the per-call ceiling for bulk inserts. The API accepts
	// up to 1000 but degrades (503s) near that limit under load, so batches
	// are capped at 500.
	maxBulkRecords = 500
)

// Config carries everything needed to reach one OpenGround cloud instance.
// Values come from the caller; the client never reads ambient state.
type Config struct {
	ClientID     string
	ClientSecret string
	Region       string
	InstanceID   string

	// TokenURL and BaseURL override the production endpoints (tests, harness).
	TokenURL string
	BaseURL  string

	// RateLimitRPS caps outgoing calls per second. <=0 disables limiting.
	RateLimitRPS float64
}

// Client is an HTTP client for the OpenGround data API surface this pipeline
// consumes: project/location/test listings, record create/delete, bulk insert,
// and the generic query endpoint.
type Client struct {
	baseURL  *url.URL
	tokenURL string
	cfg      Config
	http     *http.Client
	tokens   *gocache.Cache
	limiter  *rate.Limiter
}

// NewClient constructs a client. The base URL defaults to the region-scoped
// production host when cfg.BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if strings.TrimSpace(cfg.InstanceID) == "" {
		return nil, fmt.Errorf("instance id is required")
	}

	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		region := strings.TrimSpace(cfg.Region)
		if region == "" {
			return nil, fmt.Errorf("region is required when base URL is not set")
		}
		raw = fmt.Sprintf("https://api.%s.openground.cloud/api/v1.0", region)
	}
	base, err := parseBaseURL(raw)
	if err != nil {
		return nil, err
	}

	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Client{
		baseURL:  base,
		tokenURL: tokenURL,
		cfg:      cfg,
		http:     &http.Client{Timeout: 60 * time.Second},
		tokens:   gocache.New(gocache.NoExpiration, time.Minute),
		limiter:  limiter,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// Projects returns all projects visible to the credentials as a
// project-name -> cloud-id map.
func (c *Client) Projects(ctx context.Context) (map[string]string, error) {
	body, err := c.doJSON(ctx, "listProjects", http.MethodGet, "data/projects", nil)
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("parse projects response: %w", err)
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		name, ok := r.field("ProjectID")
		if !ok {
			continue
		}
		out[name] = r.ID
	}
	return out, nil
}

// Locations returns the project's locations as a location-name -> cloud-id map.
func (c *Client) Locations(ctx context.Context, projectID string) (map[string]string, error) {
	p := fmt.Sprintf("data/projects/%s/groups/%s", url.PathEscape(projectID), GroupLocationDetails)
	body, err := c.doJSON(ctx, "listLocations", http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("parse locations response: %w", err)
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		name, ok := r.field("LocationID")
		if !ok {
			continue
		}
		out[name] = r.ID
	}
	return out, nil
}

// CPTGeneralRecords returns the project's test-general records as a
// location-name -> cloud-id map.
func (c *Client) CPTGeneralRecords(ctx context.Context, projectID string) (map[string]string, error) {
	req := queryRequest{
		Projections: []queryProjection{
			{Group: GroupLocationDetails, Header: "LocationID"},
			{Group: GroupCPTGeneral, Header: "TestNumber"},
			{Group: GroupCPTGeneral, Header: "TestType"},
		},
		Group:    GroupCPTGeneral,
		Projects: []string{projectID},
	}
	recs, err := c.query(ctx, "listCPTGeneralRecords", req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		name, ok := r.field("LocationID")
		if !ok {
			continue
		}
		if prev, dup := out[name]; dup && prev != r.ID {
			return nil, fmt.Errorf("location %q has multiple test-general records", name)
		}
		out[name] = r.ID
	}
	return out, nil
}

// CountDataRows returns the number of measurement rows stored for a test.
func (c *Client) CountDataRows(ctx context.Context, projectID, name string) (int, error) {
	req := queryRequest{
		Projections: []queryProjection{
			{Group: GroupLocationDetails, Header: "LocationID"},
			{Group: GroupCPTData, Header: "Depth"},
		},
		Group:    GroupCPTData,
		Projects: []string{projectID},
	}
	recs, err := c.query(ctx, "countDataRows", req)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if v, ok := r.field("LocationID"); ok && v == name {
			n++
		}
	}
	return n, nil
}

// CreateLocation inserts a LocationDetails record and returns its cloud id.
func (c *Client) CreateLocation(ctx context.Context, projectID string, fields []DataField) (string, error) {
	return c.createRecord(ctx, "createLocation", projectID, GroupLocationDetails, fields)
}

// DeleteLocation removes a location. OpenGround cascades the delete to the
// location's test-general record and its measurement rows.
func (c *Client) DeleteLocation(ctx context.Context, projectID, remoteID string) error {
	return c.deleteRecord(ctx, "deleteLocation", projectID, GroupLocationDetails, remoteID)
}

// CreateCPTGeneral inserts a test-general record and returns its cloud id.
func (c *Client) CreateCPTGeneral(ctx context.Context, projectID string, fields []DataField) (string, error) {
	return c.createRecord(ctx, "createCPTGeneral", projectID, GroupCPTGeneral, fields)
}

// DeleteCPTGeneral removes a test-general record and, via cascade, its
// measurement rows.
func (c *Client) DeleteCPTGeneral(ctx context.Context, projectID, remoteID string) error {
	return c.deleteRecord(ctx, "deleteCPTGeneral", projectID, GroupCPTGeneral, remoteID)
}

// BulkInsert loads records into a group in batches of at most 500. Any batch
// failure aborts the remaining batches.
func (c *Client) BulkInsert(ctx context.Context, projectID, group string, records [][]DataField) error {
	p := fmt.Sprintf("data/projects/%s/groups/%s/bulk", url.PathEscape(projectID), url.PathEscape(group))
	for start := 0; start < len(records); start += maxBulkRecords {
		end := start + maxBulkRecords
		if end > len(records) {
			end = len(records)
		}
		entries := make([]bulkEntry, 0, end-start)
		for _, fields := range records[start:end] {
			entries = append(entries, bulkEntry{Group: group, DataFields: fields})
		}
		if _, err := c.doJSON(ctx, "bulkInsert", http.MethodPost, p, bulkRequest{DataEntries: entries}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) createRecord(ctx context.Context, op, projectID, group string, fields []DataField) (string, error) {
	p := fmt.Sprintf("data/projects/%s/groups/%s", url.PathEscape(projectID), url.PathEscape(group))
	body, err := c.doJSON(ctx, op, http.MethodPost, p, createRecordRequest{Group: group, DataFields: fields})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"Id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse %s response: %w", op, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("%s response missing record id", op)
	}
	return out.ID, nil
}

func (c *Client) deleteRecord(ctx context.Context, op, projectID, group, remoteID string) error {
	p := fmt.Sprintf("data/projects/%s/groups/%s/delete", url.PathEscape(projectID), url.PathEscape(group))
	_, err := c.doPut(ctx, op, p, []string{remoteID})
	return err
}

func (c *Client) query(ctx context.Context, op string, req queryRequest) ([]record, error) {
	body, err := c.doJSON(ctx, op, http.MethodPost, "data/query", req)
	if err != nil {
		return nil, err
	}
	var recs []record
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", op, err)
	}
	return recs, nil
}

func (c *Client) doPut(ctx context.Context, op, relPath string, payload any) ([]byte, error) {
	return c.do(ctx, op, http.MethodPut, relPath, payload)
}

func (c *Client) doJSON(ctx context.Context, op, method, relPath string, payload any) ([]byte, error) {
	return c.do(ctx, op, method, relPath, payload)
}

func (c *Client) do(ctx context.Context, op, method, relPath string, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	u := c.resolve(relPath)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("KeynetixCloud", keynetixCloudHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("instanceId", c.cfg.InstanceID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, newAPIError(op, resp, b)
	}
	return b, nil
}

func (c *Client) resolve(relPath string) *url.URL {
	relPath = strings.TrimPrefix(relPath, "/")
	rel := &url.URL{Path: relPath}
	return c.baseURL.ResolveReference(rel)
}
