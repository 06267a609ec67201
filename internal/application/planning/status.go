package planning

import (
	"context"
	"fmt"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// allowedTransitions are the legal route status moves driven from the API.
// The adaptive optimizer owns the reoptimizing and disrupted moves internally.
var allowedTransitions = map[routing.RouteStatus][]routing.RouteStatus{
	routing.RouteStatusPlanned:   {routing.RouteStatusActive, routing.RouteStatusCancelled},
	routing.RouteStatusActive:    {routing.RouteStatusCompleted, routing.RouteStatusCancelled, routing.RouteStatusDisrupted},
	routing.RouteStatusDisrupted: {routing.RouteStatusCancelled, routing.RouteStatusCompleted},
}

// StatusUpdate describes a requested route state transition.
type StatusUpdate struct {
	Status           routing.RouteStatus
	CurrentStopIndex *int
	CurrentLocation  *shared.Coordinate
}

// UpdateRouteStatus applies a route state transition, keeps vehicle, driver
// and order state in step, and publishes the matching progress events.
func (s *Service) UpdateRouteStatus(ctx context.Context, routeID string, update StatusUpdate) (*routing.Route, error) {
	route, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	sameStatus := route.Status == update.Status
	if !sameStatus && !transitionAllowed(route.Status, update.Status) {
		return nil, shared.NewDomainError(shared.KindConflictingUpdate,
			fmt.Sprintf("route %s cannot move from %s to %s", routeID, route.Status, update.Status))
	}

	prevIndex := route.CurrentStopIndex
	if update.CurrentStopIndex != nil {
		if err := route.AdvanceTo(*update.CurrentStopIndex); err != nil {
			return nil, err
		}
	}
	route.Status = update.Status

	progressed := update.CurrentStopIndex != nil && *update.CurrentStopIndex > prevIndex
	var completions []event.Event
	if progressed {
		completions, err = s.progressStops(ctx, route, prevIndex, *update.CurrentStopIndex, update.CurrentLocation)
		if err != nil {
			return nil, err
		}
		// Stop mutations require the full route rewrite.
		if err := s.routes.SaveSolution(ctx, []*routing.Route{route}); err != nil {
			return nil, err
		}
	} else {
		if err := s.routes.UpdateStatus(ctx, routeID, update.Status, update.CurrentStopIndex); err != nil {
			return nil, err
		}
	}

	for _, ev := range completions {
		s.bus.Publish(ev)
	}

	switch {
	case !sameStatus && update.Status == routing.RouteStatusActive:
		if err := s.routeStarted(ctx, route); err != nil {
			return nil, err
		}
	case !sameStatus && (update.Status == routing.RouteStatusCompleted || update.Status == routing.RouteStatusCancelled):
		if err := s.routeFinished(ctx, route, update.Status); err != nil {
			return nil, err
		}
	}

	common.LoggerFromContext(ctx).Log("INFO", "Route status updated", map[string]interface{}{
		"route_id": routeID,
		"status":   string(update.Status),
		"index":    route.CurrentStopIndex,
	})
	return route, nil
}

func transitionAllowed(from, to routing.RouteStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// progressStops marks stops below the new index completed and moves their
// orders to delivered. Returns the stop_completed events to publish once the
// rewrite is committed.
func (s *Service) progressStops(ctx context.Context, route *routing.Route, from, to int, location *shared.Coordinate) ([]event.Event, error) {
	now := s.clock.Now()
	var events []event.Event
	for _, stop := range route.Stops {
		if stop.Sequence < from || stop.Sequence >= to || stop.IsFinished() {
			continue
		}
		stop.Status = routing.StopStatusCompleted
		t := now.UTC()
		stop.ActualArrival = &t
		stop.ActualDeparture = &t

		if stop.Kind == routing.StopKindDelivery && stop.OrderID != "" {
			if err := s.orders.UpdateStatus(ctx, stop.OrderID, dispatch.OrderStatusDelivered); err != nil {
				return nil, err
			}
		}

		ev := event.New(event.KindStopCompleted, event.SeverityLow, now)
		ev.RouteID = route.ID
		ev.OrderID = stop.OrderID
		ev.VehicleID = route.VehicleID
		ev.DriverID = route.DriverID
		if location != nil {
			loc := *location
			ev.Location = &loc
		}
		ev.Payload["sequence"] = stop.Sequence
		events = append(events, ev)
	}
	return events, nil
}

// routeStarted flips the pair to working state and announces the departure.
func (s *Service) routeStarted(ctx context.Context, route *routing.Route) error {
	if err := s.vehicles.UpdateStatus(ctx, route.VehicleID, dispatch.VehicleStatusInUse); err != nil {
		return err
	}
	if err := s.drivers.UpdateStatus(ctx, route.DriverID, dispatch.DriverStatusOnRoute); err != nil {
		return err
	}
	for _, stop := range route.DeliveryStops() {
		if stop.OrderID == "" {
			continue
		}
		if err := s.orders.UpdateStatus(ctx, stop.OrderID, dispatch.OrderStatusInTransit); err != nil {
			return err
		}
	}

	ev := event.New(event.KindRouteStarted, event.SeverityLow, s.clock.Now())
	ev.RouteID = route.ID
	ev.VehicleID = route.VehicleID
	ev.DriverID = route.DriverID
	ev.Payload["stops"] = len(route.Stops)
	s.bus.Publish(ev)
	return nil
}

// routeFinished releases the pair; cancellation returns undelivered orders to
// the pending pool.
func (s *Service) routeFinished(ctx context.Context, route *routing.Route, status routing.RouteStatus) error {
	if err := s.vehicles.UpdateStatus(ctx, route.VehicleID, dispatch.VehicleStatusAvailable); err != nil {
		return err
	}
	if err := s.drivers.UpdateStatus(ctx, route.DriverID, dispatch.DriverStatusAvailable); err != nil {
		return err
	}

	if status != routing.RouteStatusCancelled {
		return nil
	}
	for _, stop := range route.RemainingStops() {
		if stop.Kind != routing.StopKindDelivery || stop.OrderID == "" {
			continue
		}
		order, err := s.orders.FindByID(ctx, stop.OrderID)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			continue
		}
		order.Detach()
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
	}
	return nil
}
