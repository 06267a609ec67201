package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

type timeWindowRequest struct {
	Start            time.Time `json:"start" validate:"required"`
	End              time.Time `json:"end" validate:"required"`
	CustomerVerified bool      `json:"customer_verified"`
}

// handleOrderTimeWindow applies a customer reschedule. The published event
// carries the new window so the adaptive optimizer can replan affected routes.
func (s *Server) handleOrderTimeWindow(w http.ResponseWriter, r *http.Request) {
	var req timeWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid time window request", err))
		return
	}

	window, err := shared.NewTimeWindow(req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}

	orderID := chi.URLParam(r, "id")
	order, err := s.deps.Orders.FindByID(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Orders.UpdateTimeWindow(r.Context(), orderID, window); err != nil {
		writeError(w, err)
		return
	}

	ev := event.New(event.KindCustomerReschedule, event.SeverityMedium, s.deps.Clock.Now())
	ev.OrderID = orderID
	// Only orders already assigned to a stop can disturb a live route.
	ev.TriggersReoptimization = order.StopID != ""
	ev.Payload["window_start"] = window.Start.Format(time.RFC3339)
	ev.Payload["window_end"] = window.End.Format(time.RFC3339)
	ev.Payload["customer_verified"] = req.CustomerVerified
	s.deps.Bus.Publish(ev)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    orderID,
		"time_window": window,
		"event_id":    ev.ID,
	})
}
