package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/plumescan/emissions/internal/config"
	"github.com/plumescan/emissions/internal/emissions"
)

// fakeLister serves pages out of an in-memory record set, applying the
// same filtering and (timestamp DESC, identity DESC) keyset semantics
// the store does.
type fakeLister struct {
	records []emissions.EmissionRecord
	err     error
	calls   int
}

func (f *fakeLister) ListEmissions(_ context.Context, p emissions.ListParams) (*emissions.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	matched := make([]emissions.EmissionRecord, 0, len(f.records))
	for _, rec := range f.records {
		if rec.SiteID != p.SiteID || rec.EquipmentID != p.EquipmentID {
			continue
		}
		if rec.Confidence < p.ConfidenceMin {
			continue
		}
		if p.From != nil && rec.Timestamp.Before(*p.From) {
			continue
		}
		if p.To != nil && rec.Timestamp.After(*p.To) {
			continue
		}
		if p.Cursor != nil {
			after := rec.Timestamp.After(p.Cursor.Ts) ||
				(rec.Timestamp.Equal(p.Cursor.Ts) && rec.RecordID >= p.Cursor.ID)
			if after {
				continue
			}
		}
		if !p.IncludeDetections {
			rec.Detections = nil
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].RecordID > matched[j].RecordID
	})

	page := &emissions.Page{}
	if len(matched) > p.Limit {
		matched = matched[:p.Limit]
		last := matched[len(matched)-1]
		page.NextCursor = &emissions.Cursor{Ts: last.Timestamp, ID: last.RecordID}
	}
	page.Items = matched
	return page, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, lister Lister) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 30 * time.Second,
		},
		Query: config.QueryConfig{
			DefaultLimit:         100,
			MaxLimit:             1000,
			DefaultConfidenceMin: 0.75,
		},
	}
	return NewServer(lister, &fakePinger{}, cfg)
}

func listRecords(n int, siteID, equipmentID string) []emissions.EmissionRecord {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]emissions.EmissionRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, emissions.EmissionRecord{
			RecordID:    int64(i + 1),
			ReadingID:   fmt.Sprintf("r-%03d", i+1),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			SiteID:      siteID,
			SiteName:    "North Pad",
			EquipmentID: equipmentID,
			Type:        "methane",
			Mass:        1.5,
			Unit:        "kg/hr",
			Confidence:  0.9,
			Detections:  json.RawMessage(`[{"bbox":[1,2,3,4]}]`),
		})
	}
	return recs
}

func doRequest(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func TestListEmissions_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantMsg string
	}{
		{
			name:    "missing siteId",
			target:  "/emissions?equipmentId=eq-1",
			wantMsg: "siteId is required",
		},
		{
			name:    "missing equipmentId",
			target:  "/emissions?siteId=site-1",
			wantMsg: "equipmentId is required",
		},
		{
			name:    "bad from",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&from=yesterday",
			wantMsg: "invalid from: must be an RFC 3339 timestamp",
		},
		{
			name:    "inverted window",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z",
			wantMsg: "from must be <= to",
		},
		{
			name:    "confidence out of range",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&confidenceMin=1.5",
			wantMsg: "invalid confidenceMin: must be a number between 0 and 1",
		},
		{
			name:    "limit out of range",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&limit=5000",
			wantMsg: "invalid limit: must be an integer between 1 and 1000",
		},
		{
			name:    "bad includeDetections",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&includeDetections=maybe",
			wantMsg: "invalid includeDetections: must be a boolean",
		},
		{
			name:    "cursorTs without cursorId",
			target:  "/emissions?siteId=site-1&equipmentId=eq-1&cursorTs=2026-03-01T00:00:00Z",
			wantMsg: "cursorTs and cursorId are required together",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{}
			s := newTestServer(t, lister)

			rr := doRequest(t, s, tt.target)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeBody(t, rr, &body)
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if lister.calls != 0 {
				t.Errorf("store was queried %d times for an invalid request", lister.calls)
			}
		})
	}
}

func TestListEmissions_PageShape(t *testing.T) {
	lister := &fakeLister{records: listRecords(5, "site-1", "eq-1")}
	s := newTestServer(t, lister)

	rr := doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1&limit=3")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Count       int               `json:"count"`
		SiteID      string            `json:"siteId"`
		EquipmentID string            `json:"equipmentId"`
		NextCursor  *emissions.Cursor `json:"nextCursor"`
		Items       []map[string]any  `json:"items"`
	}
	decodeBody(t, rr, &body)

	if body.Count != 3 || len(body.Items) != 3 {
		t.Fatalf("count = %d, items = %d, want 3", body.Count, len(body.Items))
	}
	if body.SiteID != "site-1" || body.EquipmentID != "eq-1" {
		t.Errorf("scope = (%q, %q)", body.SiteID, body.EquipmentID)
	}
	if body.NextCursor == nil {
		t.Fatal("nextCursor missing with more rows available")
	}

	// Newest first: record 5 leads the page.
	if got := body.Items[0]["id"]; got != "r-005" {
		t.Errorf("items[0].id = %v, want r-005", got)
	}
	if _, present := body.Items[0]["detections"]; present {
		t.Error("detections present without includeDetections")
	}
	if _, present := body.Items[0]["recordId"]; present {
		t.Error("internal record identity leaked into response")
	}
}

func TestListEmissions_EmptyPage(t *testing.T) {
	s := newTestServer(t, &fakeLister{})

	rr := doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]json.RawMessage
	decodeBody(t, rr, &body)
	if string(body["count"]) != "0" {
		t.Errorf("count = %s, want 0", body["count"])
	}
	if string(body["items"]) != "[]" {
		t.Errorf("items = %s, want empty array", body["items"])
	}
	cursor, present := body["nextCursor"]
	if !present || string(cursor) != "null" {
		t.Errorf("nextCursor = %s, want explicit null", cursor)
	}
}

func TestListEmissions_IncludeDetections(t *testing.T) {
	lister := &fakeLister{records: listRecords(1, "site-1", "eq-1")}
	s := newTestServer(t, lister)

	rr := doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1&includeDetections=true")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Items []struct {
			Detections json.RawMessage `json:"detections"`
		} `json:"items"`
	}
	decodeBody(t, rr, &body)
	if len(body.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(body.Items))
	}
	if string(body.Items[0].Detections) != `[{"bbox":[1,2,3,4]}]` {
		t.Errorf("detections = %s", body.Items[0].Detections)
	}
}

// TestListEmissions_CursorChaining walks a multi-page result set by
// feeding each nextCursor back, verifying full coverage, descending
// order, and no overlap between pages.
func TestListEmissions_CursorChaining(t *testing.T) {
	const total = 10
	lister := &fakeLister{records: listRecords(total, "site-1", "eq-1")}
	s := newTestServer(t, lister)

	seen := make(map[string]bool)
	var lastTs time.Time
	target := "/emissions?siteId=site-1&equipmentId=eq-1&limit=3"

	for page := 0; ; page++ {
		if page > total {
			t.Fatal("pagination did not terminate")
		}

		rr := doRequest(t, s, target)
		if rr.Code != http.StatusOK {
			t.Fatalf("page %d: status = %d, body %s", page, rr.Code, rr.Body.String())
		}

		var body struct {
			Count      int `json:"count"`
			NextCursor *struct {
				Ts time.Time `json:"cursorTs"`
				ID string    `json:"cursorId"`
			} `json:"nextCursor"`
			Items []struct {
				ID        string    `json:"id"`
				Timestamp time.Time `json:"timestamp"`
			} `json:"items"`
		}
		decodeBody(t, rr, &body)

		for _, item := range body.Items {
			if seen[item.ID] {
				t.Fatalf("page %d: item %s returned twice", page, item.ID)
			}
			seen[item.ID] = true
			if !lastTs.IsZero() && item.Timestamp.After(lastTs) {
				t.Fatalf("page %d: item %s out of order", page, item.ID)
			}
			lastTs = item.Timestamp
		}

		if body.NextCursor == nil {
			break
		}
		target = fmt.Sprintf("/emissions?siteId=site-1&equipmentId=eq-1&limit=3&cursorTs=%s&cursorId=%s",
			body.NextCursor.Ts.Format(time.RFC3339Nano), body.NextCursor.ID)
	}

	if len(seen) != total {
		t.Errorf("saw %d distinct items, want %d", len(seen), total)
	}
}

func TestListEmissions_ConfidenceFilter(t *testing.T) {
	recs := listRecords(3, "site-1", "eq-1")
	recs[1].Confidence = 0.5
	lister := &fakeLister{records: recs}
	s := newTestServer(t, lister)

	// Default floor of 0.75 hides the low-confidence reading.
	rr := doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1")
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &body)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2 with default confidence floor", body.Count)
	}

	// Lowering the floor exposes it.
	rr = doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1&confidenceMin=0")
	decodeBody(t, rr, &body)
	if body.Count != 3 {
		t.Errorf("count = %d, want 3 with confidenceMin=0", body.Count)
	}
}

func TestListEmissions_StoreFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	s := newTestServer(t, lister)

	rr := doRequest(t, s, "/emissions?siteId=site-1&equipmentId=eq-1")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rr, &body)
	if body.Error != "internal server error" {
		t.Errorf("error = %q, internal detail must not leak", body.Error)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeLister{})

	rr := doRequest(t, s, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	s.pinger = &fakePinger{err: errors.New("down")}
	rr = doRequest(t, s, "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
