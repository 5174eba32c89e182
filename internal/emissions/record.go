// Package emissions holds the domain model for equipment emission readings:
// the record type, row normalization rules, and query parameter validation
// for the paginated query endpoint.
package emissions

import (
	"encoding/json"
	"time"
)

// EmptyDetections is the JSON payload stored when a reading carries no
// detections or when the source payload was malformed.
var EmptyDetections = json.RawMessage("[]")

// EmissionRecord is one sensor-detected emission event.
//
// ReadingID is the externally supplied natural key; re-seeding the same
// source file relies on a unique index over it. RecordID is the
// store-assigned identity and is only meaningful after a read from the
// store, where it serves as the pagination tie-breaker.
type EmissionRecord struct {
	RecordID      int64     `json:"-"`
	ReadingID     string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	SiteID        string    `json:"siteId"`
	SiteName      string    `json:"siteName"`
	EquipmentID   string    `json:"equipmentId"`
	Type          string    `json:"type"`
	Mass          float64   `json:"mass"`
	Unit          string    `json:"unit"`
	ScanDuration  int       `json:"scanDuration"`
	Confidence    float64   `json:"confidence"`
	NumDetections int       `json:"numDetections"`

	// Detections is an opaque JSON array. It is nil when the caller did
	// not ask for detections, in which case the field is omitted from
	// JSON output entirely.
	Detections json.RawMessage `json:"detections,omitempty"`
}

// Cursor marks the exclusive lower bound of the next page under
// (timestamp DESC, record identity DESC) ordering. It is the
// (timestamp, identity) pair of the last item returned on the previous
// page. The identity is rendered as a string so callers treat the token
// as opaque.
type Cursor struct {
	Ts time.Time `json:"cursorTs"`
	ID int64     `json:"cursorId,string"`
}

// Page is one page of query results. NextCursor is nil when no further
// matching record existed at query time.
type Page struct {
	Items      []EmissionRecord
	NextCursor *Cursor
}
