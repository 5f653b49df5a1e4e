package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
)

// recordAudit stores a bridge change. Failures are logged, never returned
// to the caller: the change itself already happened.
func (s *Server) recordAudit(r *http.Request, action, bridgeID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:   action,
		BridgeID: bridgeID,
		Source:   audit.SourceAPI,
		Details:  details,
	}
	if claims, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims); ok {
		entry.Subject = claims.Subject
	}
	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Warn("audit record failed", "action", action, "bridge_id", bridgeID, "error", err)
	}
}

// handleListAudit returns audit entries, newest first.
// Query: action, bridge, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		BridgeID: q.Get("bridge"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
