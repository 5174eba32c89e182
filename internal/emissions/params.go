package emissions

// params.go validates the query string of GET /emissions into typed
// ListParams. Every check runs up front so that an invalid request is
// rejected before any store access; the error messages name the offending
// parameter because clients key retry behavior off them.

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// RequestError is a client-side validation failure. The message is safe
// to return verbatim in an error response.
type RequestError struct {
	msg string
}

func (e *RequestError) Error() string { return e.msg }

func requestErrorf(format string, args ...any) *RequestError {
	return &RequestError{msg: fmt.Sprintf(format, args...)}
}

// QueryDefaults carries the configurable bounds applied during parameter
// validation.
type QueryDefaults struct {
	Limit         int
	MaxLimit      int
	ConfidenceMin float64
}

// ListParams is a fully validated query request for one page of emission
// readings scoped to a (siteId, equipmentId) pair.
type ListParams struct {
	SiteID            string
	EquipmentID       string
	From              *time.Time
	To                *time.Time
	ConfidenceMin     float64
	Limit             int
	IncludeDetections bool
	Cursor            *Cursor
}

// ParseListParams validates raw query values against d. It returns a
// *RequestError for any client mistake; the caller maps that to a 400.
func ParseListParams(q url.Values, d QueryDefaults) (*ListParams, error) {
	p := &ListParams{
		ConfidenceMin: d.ConfidenceMin,
		Limit:         d.Limit,
	}

	p.SiteID = q.Get("siteId")
	if p.SiteID == "" {
		return nil, requestErrorf("siteId is required")
	}
	p.EquipmentID = q.Get("equipmentId")
	if p.EquipmentID == "" {
		return nil, requestErrorf("equipmentId is required")
	}

	if raw := q.Get("from"); raw != "" {
		t, err := ParseTimestamp(raw)
		if err != nil {
			return nil, requestErrorf("invalid from: must be an RFC 3339 timestamp")
		}
		p.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := ParseTimestamp(raw)
		if err != nil {
			return nil, requestErrorf("invalid to: must be an RFC 3339 timestamp")
		}
		p.To = &t
	}
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return nil, requestErrorf("from must be <= to")
	}

	if raw := q.Get("confidenceMin"); raw != "" {
		// NaN compares false against both bounds, so it needs its own check.
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
			return nil, requestErrorf("invalid confidenceMin: must be a number between 0 and 1")
		}
		p.ConfidenceMin = f
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > d.MaxLimit {
			return nil, requestErrorf("invalid limit: must be an integer between 1 and %d", d.MaxLimit)
		}
		p.Limit = n
	}

	if raw := q.Get("includeDetections"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, requestErrorf("invalid includeDetections: must be a boolean")
		}
		p.IncludeDetections = b
	}

	cursor, err := parseCursor(q.Get("cursorTs"), q.Get("cursorId"))
	if err != nil {
		return nil, err
	}
	p.Cursor = cursor

	return p, nil
}

// parseCursor validates the opaque pagination token. The two halves are
// only meaningful together, so supplying exactly one is a request error.
func parseCursor(rawTs, rawID string) (*Cursor, error) {
	if rawTs == "" && rawID == "" {
		return nil, nil
	}
	if rawTs == "" || rawID == "" {
		return nil, requestErrorf("cursorTs and cursorId are required together")
	}

	ts, err := ParseTimestamp(rawTs)
	if err != nil {
		return nil, requestErrorf("invalid cursorTs: must be an RFC 3339 timestamp")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		return nil, requestErrorf("invalid cursorId: not a valid record identity")
	}

	return &Cursor{Ts: ts, ID: id}, nil
}
