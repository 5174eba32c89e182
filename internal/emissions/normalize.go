package emissions

// normalize.go converts one raw CSV row into a typed EmissionRecord.
//
// Normalization is a pure transform: no I/O, errors are values. A failed
// row is reported to the caller and never aborts the surrounding stream.
// The one deliberate exception is the detections payload, which degrades
// to an empty array instead of failing the row, because detections are
// supplementary rather than load-critical.

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical column names recognized in input files. Lookup is performed
// against CanonicalColumn output, so "site_id", "siteId" and "Site ID"
// all resolve to the same column.
const (
	ColReadingID     = "id"
	ColTimestamp     = "timestamp"
	ColSiteID        = "siteid"
	ColSiteName      = "sitename"
	ColEquipmentID   = "equipmentid"
	ColType          = "type"
	ColMass          = "mass"
	ColUnit          = "unit"
	ColScanDuration  = "scanduration"
	ColConfidence    = "confidence"
	ColNumDetections = "numdetections"
	ColDetections    = "detections"
)

// RequiredColumns are the columns an input file must declare in its
// header for ingestion to proceed at all.
var RequiredColumns = []string{ColReadingID, ColTimestamp, ColSiteID, ColEquipmentID}

// timestampLayouts are tried in order. Layouts without a zone are
// interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CanonicalColumn maps a raw header cell to its canonical column name:
// lowercase with spaces, underscores and hyphens removed.
func CanonicalColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, name)
}

// NormalizeRow builds a typed EmissionRecord from a canonical-column →
// raw-string mapping for one row. It returns a row-level error when any
// required or numeric field is missing or unparseable.
func NormalizeRow(row map[string]string) (*EmissionRecord, error) {
	get := func(col string) string { return strings.TrimSpace(row[col]) }

	readingID := get(ColReadingID)
	if readingID == "" {
		return nil, fmt.Errorf("missing required field %q", "id")
	}
	siteID := get(ColSiteID)
	if siteID == "" {
		return nil, fmt.Errorf("missing required field %q", "siteId")
	}
	equipmentID := get(ColEquipmentID)
	if equipmentID == "" {
		return nil, fmt.Errorf("missing required field %q", "equipmentId")
	}

	ts, err := ParseTimestamp(get(ColTimestamp))
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", "timestamp", err)
	}

	mass, err := parseFiniteFloat(get(ColMass))
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", "mass", err)
	}
	confidence, err := parseFiniteFloat(get(ColConfidence))
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", "confidence", err)
	}

	scanDuration, err := strconv.Atoi(get(ColScanDuration))
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid integer %q", "scanDuration", get(ColScanDuration))
	}
	numDetections, err := strconv.Atoi(get(ColNumDetections))
	if err != nil || numDetections < 0 {
		return nil, fmt.Errorf("field %q: invalid count %q", "numDetections", get(ColNumDetections))
	}

	return &EmissionRecord{
		ReadingID:     readingID,
		Timestamp:     ts,
		SiteID:        siteID,
		SiteName:      get(ColSiteName),
		EquipmentID:   equipmentID,
		Type:          get(ColType),
		Mass:          mass,
		Unit:          get(ColUnit),
		ScanDuration:  scanDuration,
		Confidence:    confidence,
		NumDetections: numDetections,
		Detections:    ParseDetections(get(ColDetections)),
	}, nil
}

// ParseTimestamp parses an instant from any of the supported layouts.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ParseDetections parses the supplementary detections payload. Anything
// that is not a JSON array yields the empty array; a malformed payload is
// not a row error.
func ParseDetections(raw string) json.RawMessage {
	if raw == "" {
		return EmptyDetections
	}
	// JSON null unmarshals into a nil slice without error; only a real
	// array may pass through so the stored payload is always an array.
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &arr); err != nil || arr == nil {
		return EmptyDetections
	}
	return json.RawMessage(raw)
}

func parseFiniteFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}
