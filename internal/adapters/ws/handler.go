// Package ws streams dispatch events to browser clients over WebSocket.
// Each channel is a filtered view of the event bus; every connection gets its
// own bus subscription so a slow client never stalls the others.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/application/planning"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// Channel names served under /ws.
const (
	ChannelRoutes     = "routes"
	ChannelEvents     = "events"
	ChannelETA        = "eta"
	ChannelMonitoring = "monitoring"
)

// Envelope is the wire frame for every server-to-client message.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Message types carried in Envelope.Type.
const (
	TypeRouteUpdate    = "route_update"
	TypeEvent          = "event"
	TypeETAUpdate      = "eta_update"
	TypeReoptimization = "reoptimization"
	TypeHeartbeat      = "heartbeat"
	TypePong           = "pong"
)

// Handler upgrades connections and fans events out per channel.
type Handler struct {
	bus       event.Bus
	eta       *planning.ETAService
	heartbeat time.Duration
	clock     shared.Clock
	logger    common.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates the WebSocket handler. eta may be nil; the eta channel
// then degrades to raw progress events.
func NewHandler(bus event.Bus, eta *planning.ETAService, heartbeat time.Duration, clock shared.Clock, logger common.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Handler{
		bus:       bus,
		eta:       eta,
		heartbeat: heartbeat,
		clock:     clock,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browsers connect from the dashboard origin; CORS is enforced
			// at the HTTP layer for the rest of the API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes mounts one endpoint per channel.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/routes", h.serveChannel(ChannelRoutes))
	r.Get("/events", h.serveChannel(ChannelEvents))
	r.Get("/eta", h.serveChannel(ChannelETA))
	r.Get("/monitoring", h.serveChannel(ChannelMonitoring))
	return r
}

func (h *Handler) serveChannel(channel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sub := h.bus.Subscribe(channelFilter(channel, r.URL.Query().Get("route_id")))
		client := newClient(h, conn, channel, sub)
		if h.logger != nil {
			h.logger.Log("DEBUG", "WebSocket client connected", map[string]interface{}{
				"channel": channel,
				"remote":  conn.RemoteAddr().String(),
			})
		}
		go client.writePump(r.Context())
		go client.readPump()
	}
}

// channelFilter narrows the bus subscription to what the channel shows.
func channelFilter(channel, routeID string) event.Filter {
	f := event.Filter{RouteID: routeID}
	switch channel {
	case ChannelRoutes:
		f.Kinds = []event.Kind{
			event.KindRouteStarted,
			event.KindStopCompleted,
			event.KindDeliveryFailed,
			event.KindReoptimizationCompleted,
		}
	case ChannelETA:
		f.Kinds = []event.Kind{
			event.KindStopCompleted,
			event.KindReoptimizationCompleted,
			event.KindTrafficDelay,
			event.KindWeather,
		}
	}
	// events and monitoring see everything.
	return f
}

// envelope translates a bus event into the channel's wire frame. ok=false
// drops the event for this channel.
func (h *Handler) envelope(channel string, ev event.Event) (Envelope, bool) {
	now := h.clock.Now().UTC()
	switch channel {
	case ChannelRoutes:
		typ := TypeRouteUpdate
		if ev.Kind == event.KindReoptimizationCompleted {
			typ = TypeReoptimization
		}
		return Envelope{Type: typ, Data: ev, Timestamp: now}, true

	case ChannelETA:
		if h.eta == nil || ev.RouteID == "" {
			return Envelope{}, false
		}
		predictions, err := h.eta.RouteETA(context.Background(), ev.RouteID, nil)
		if err != nil {
			return Envelope{}, false
		}
		return Envelope{
			Type: TypeETAUpdate,
			Data: map[string]interface{}{
				"route_id":    ev.RouteID,
				"trigger":     string(ev.Kind),
				"predictions": predictions,
			},
			Timestamp: now,
		}, true

	default:
		typ := TypeEvent
		switch ev.Kind {
		case event.KindReoptimizationTriggered, event.KindReoptimizationCompleted,
			event.KindReoptimizationFailed, event.KindReoptimizationRejected:
			typ = TypeReoptimization
		}
		return Envelope{Type: typ, Data: ev, Timestamp: now}, true
	}
}
