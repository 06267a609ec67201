package httpapi

import (
	"net/http"

	"github.com/openfleet/lastmile/internal/domain/event"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := event.ListQuery{
		Kind:       event.Kind(r.URL.Query().Get("kind")),
		Severity:   event.Severity(r.URL.Query().Get("severity")),
		RouteID:    r.URL.Query().Get("route_id"),
		ActiveOnly: r.URL.Query().Get("active_only") == "true",
		Limit:      intQuery(r, "limit"),
		Offset:     intQuery(r, "offset"),
	}

	events, err := s.deps.Events.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
