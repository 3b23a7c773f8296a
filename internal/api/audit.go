package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
)

// handleListAuditLogs returns paginated audit entries, newest first.
//
// Query parameters:
//   - action: attribute.set, backend.fallback or hotplug.change
//   - display: display ID, e.g. 0:1
//   - attribute: attribute kind
//   - outcome: ok, rejected or failed
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		DisplayID: q.Get("display"),
		Attribute: q.Get("attribute"),
		Outcome:   q.Get("outcome"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
