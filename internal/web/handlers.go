package web

import (
	"net/http"
	"time"

	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/logging"
	"github.com/plumescan/emissions/internal/metrics"
)

// listResponse is the page envelope for GET /emissions. Items is always
// present, as an empty array when the page is empty; NextCursor is null
// on the final page.
type listResponse struct {
	Count       int                        `json:"count"`
	SiteID      string                     `json:"siteId"`
	EquipmentID string                     `json:"equipmentId"`
	NextCursor  *emissions.Cursor          `json:"nextCursor"`
	Items       []emissions.EmissionRecord `json:"items"`
}

// handleListEmissions serves one keyset-paginated page of readings.
// Parameter validation runs to completion before the store is touched,
// so an invalid request never costs a query.
func (s *Server) handleListEmissions(w http.ResponseWriter, r *http.Request) {
	params, err := emissions.ParseListParams(r.URL.Query(), s.defaults)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	start := time.Now()
	page, err := s.lister.ListEmissions(r.Context(), *params)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []emissions.EmissionRecord{}
	}

	writeJSON(w, r, http.StatusOK, listResponse{
		Count:       len(items),
		SiteID:      params.SiteID,
		EquipmentID: params.EquipmentID,
		NextCursor:  page.NextCursor,
		Items:       items,
	})
}

// handleHealthz reports liveness plus backing-store reachability.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("health check failed", "error", err)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
