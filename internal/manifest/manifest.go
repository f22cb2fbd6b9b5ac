// Package manifest reads the batch input manifest: one job descriptor per
// source file to process.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Job names one ConeTec export to load.
type Job struct {
	// SourceFile is the path to the spreadsheet export.
	SourceFile string `json:"source_file"`
	// Name is the location/test identifier the records are filed under.
	Name string `json:"id"`
	// LocationType tags the location record, e.g. "CPT".
	LocationType string `json:"location_type"`
}

// Read decodes a JSON manifest and validates each descriptor.
func Read(r io.Reader) ([]Job, error) {
	var jobs []Job
	if err := json.NewDecoder(r).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("parse manifest JSON: %w", err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("manifest has no jobs")
	}
	seen := make(map[string]struct{}, len(jobs))
	for i, j := range jobs {
		if strings.TrimSpace(j.SourceFile) == "" {
			return nil, fmt.Errorf("manifest job %d: source_file is required", i)
		}
		if strings.TrimSpace(j.Name) == "" {
			return nil, fmt.Errorf("manifest job %d: id is required", i)
		}
		if strings.TrimSpace(j.LocationType) == "" {
			return nil, fmt.Errorf("manifest job %d: location_type is required", i)
		}
		if _, dup := seen[j.Name]; dup {
			return nil, fmt.Errorf("manifest job %d: duplicate id %q", i, j.Name)
		}
		seen[j.Name] = struct{}{}
	}
	return jobs, nil
}

// ReadFile reads a JSON manifest from disk.
func ReadFile(path string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f)
}
