// Package loader decides and executes the sequence of remote writes for one
// CPT: skip when already fully loaded, delete-and-reinsert when partially
// loaded, insert fresh otherwise — with a compensating rollback when a write
// fails partway. OpenGround has no multi-record transaction; a single
// location delete cascades to the test-general record and its measurement
// rows, which is what makes the one-level rollback sufficient.
package loader

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/cpt"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/openground"
)

// Store is the remote surface the orchestrator drives. *openground.Client
// implements it.
type Store interface {
	Locations(ctx context.Context, projectID string) (map[string]string, error)
	CPTGeneralRecords(ctx context.Context, projectID string) (map[string]string, error)
	CountDataRows(ctx context.Context, projectID, name string) (int, error)
	CreateLocation(ctx context.Context, projectID string, fields []openground.DataField) (string, error)
	DeleteLocation(ctx context.Context, projectID, remoteID string) error
	CreateCPTGeneral(ctx context.Context, projectID string, fields []openground.DataField) (string, error)
	DeleteCPTGeneral(ctx context.Context, projectID, remoteID string) error
	BulkInsert(ctx context.Context, projectID, group string, records [][]openground.DataField) error
}

// Outcome is the terminal state of one load attempt.
type Outcome int

const (
	// OutcomeFailed is the zero value: the load did not complete.
	OutcomeFailed Outcome = iota
	// OutcomeSkipped means the test was already fully loaded; no writes.
	OutcomeSkipped
	// OutcomeLoaded means the test was inserted fresh.
	OutcomeLoaded
	// OutcomeReloaded means a stale partial load was deleted and reinserted.
	OutcomeReloaded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeLoaded:
		return "loaded"
	case OutcomeReloaded:
		return "reloaded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ConsistencyError reports a post-insert row count that does not match the
// parsed series. It is fatal for the test and never auto-retried.
type ConsistencyError struct {
	Name     string
	Expected int
	Actual   int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error: test %s has %d remote measurement rows, expected %d",
		e.Name, e.Actual, e.Expected)
}

// Loader orchestrates the writes for one project.
type Loader struct {
	store     Store
	projectID string
	logger    *log.Logger
}

// New constructs a Loader. logger may be nil.
func New(store Store, projectID string, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Loader{store: store, projectID: projectID, logger: logger}
}

// Load runs the state machine for one parsed test.
//
// Writes happen in dependency order: location, then test-general, then
// measurement rows. If anything fails after this run created the location,
// the location is deleted and the cascade removes the dependent records.
func (l *Loader) Load(ctx context.Context, rec cpt.TestRecord, series cpt.MeasurementSeries, locationType string) (Outcome, error) {
	// Independent reads of the current remote state.
	locations, err := l.store.Locations(ctx, l.projectID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list locations: %w", err)
	}
	generals, err := l.store.CPTGeneralRecords(ctx, l.projectID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list test-general records: %w", err)
	}

	outcome := OutcomeLoaded
	if generalID, exists := generals[rec.Name]; exists {
		n, err := l.store.CountDataRows(ctx, l.projectID, rec.Name)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("count measurement rows: %w", err)
		}
		if n == series.Len() {
			l.logger.Printf("test=%s already loaded with %d rows, skipping", rec.Name, n)
			return OutcomeSkipped, nil
		}
		l.logger.Printf("test=%s partially loaded (%d rows, expected %d), deleting stale record", rec.Name, n, series.Len())
		if err := l.store.DeleteCPTGeneral(ctx, l.projectID, generalID); err != nil {
			return OutcomeFailed, fmt.Errorf("delete stale test-general record: %w", err)
		}
		outcome = OutcomeReloaded
	}

	locationID, haveLocation := locations[rec.Name]
	createdLocation := false
	if !haveLocation {
		l.logger.Printf("test=%s creating location", rec.Name)
		locationID, err = l.store.CreateLocation(ctx, l.projectID, locationFields(rec, locationType))
		if err != nil {
			return OutcomeFailed, fmt.Errorf("create location: %w", err)
		}
		createdLocation = true
	}

	generalID, err := l.store.CreateCPTGeneral(ctx, l.projectID, rec.DataFields())
	if err != nil {
		l.rollback(ctx, rec.Name, locationID, "", createdLocation)
		return OutcomeFailed, fmt.Errorf("create test-general record: %w", err)
	}

	l.logger.Printf("test=%s inserting %d measurement rows", rec.Name, series.Len())
	if err := l.store.BulkInsert(ctx, l.projectID, openground.GroupCPTData, series.Rows(generalID)); err != nil {
		l.rollback(ctx, rec.Name, locationID, generalID, createdLocation)
		return OutcomeFailed, fmt.Errorf("bulk insert measurement rows: %w", err)
	}

	n, err := l.store.CountDataRows(ctx, l.projectID, rec.Name)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("verify measurement rows: %w", err)
	}
	if n != series.Len() {
		return OutcomeFailed, &ConsistencyError{Name: rec.Name, Expected: series.Len(), Actual: n}
	}

	l.logger.Printf("test=%s %s with %d rows", rec.Name, outcome, n)
	return outcome, nil
}

// rollback undoes the writes made in this run. A location created here is
// deleted and the remote cascade removes the dependent test-general and
// measurement records. A pre-existing location is left alone; instead the
// test-general record created here (if any) is deleted, cascading its rows.
func (l *Loader) rollback(ctx context.Context, name, locationID, generalID string, createdLocation bool) {
	if createdLocation {
		l.logger.Printf("test=%s rolling back: deleting location %s", name, locationID)
		if err := l.store.DeleteLocation(ctx, l.projectID, locationID); err != nil {
			l.logger.Printf("test=%s rollback failed, location %s may be orphaned: %v", name, locationID, err)
		}
		return
	}
	if generalID == "" {
		return
	}
	l.logger.Printf("test=%s rolling back: deleting test-general record %s", name, generalID)
	if err := l.store.DeleteCPTGeneral(ctx, l.projectID, generalID); err != nil {
		l.logger.Printf("test=%s rollback failed, test-general record %s may be orphaned: %v", name, generalID, err)
	}
}

// locationFields builds the LocationDetails record a test depends on. The
// timestamp is filed on both the location and the test-general record.
func locationFields(rec cpt.TestRecord, locationType string) []openground.DataField {
	return []openground.DataField{
		{Header: "LocationID", Value: rec.Name},
		{Header: "uui_LocationType", Value: locationType},
		{Header: "DateStart", Value: rec.Timestamp},
	}
}
