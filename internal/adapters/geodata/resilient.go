package geodata

import (
	"context"
	"time"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// ResilientProvider traps provider failures at the boundary: when the
// primary provider is unavailable or over quota, matrix and route calls fall
// back to Haversine-derived data marked Degraded. Failures are logged, never
// propagated as fatal.
type ResilientProvider struct {
	primary    routing.GeodataProvider
	fallback   *HaversineProvider
	onFallback func()
}

var _ routing.GeodataProvider = (*ResilientProvider)(nil)

// NewResilientProvider wraps primary with the Haversine fallback.
func NewResilientProvider(primary routing.GeodataProvider, fallback *HaversineProvider) *ResilientProvider {
	return &ResilientProvider{primary: primary, fallback: fallback, onFallback: func() {}}
}

// WithCounter wires a fallback counter (prometheus in production).
func (p *ResilientProvider) WithCounter(onFallback func()) *ResilientProvider {
	if onFallback != nil {
		p.onFallback = onFallback
	}
	return p
}

func (p *ResilientProvider) Geocode(ctx context.Context, text string) (shared.Coordinate, error) {
	return p.primary.Geocode(ctx, text)
}

func (p *ResilientProvider) Route(ctx context.Context, origin, dest shared.Coordinate, waypoints []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.RouteResult, error) {
	result, err := p.primary.Route(ctx, origin, dest, waypoints, departAt, kind)
	if err != nil && p.shouldFallBack(ctx, err, "route") {
		return p.fallback.Route(ctx, origin, dest, waypoints, departAt, kind)
	}
	return result, err
}

func (p *ResilientProvider) Matrix(ctx context.Context, origins, destinations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.Matrices, error) {
	m, err := p.primary.Matrix(ctx, origins, destinations, departAt, kind)
	if err != nil && p.shouldFallBack(ctx, err, "matrix") {
		return p.fallback.Matrix(ctx, origins, destinations, departAt, kind)
	}
	return m, err
}

func (p *ResilientProvider) shouldFallBack(ctx context.Context, err error, operation string) bool {
	kind := shared.KindOf(err)
	if kind != shared.KindServiceUnavailable && kind != shared.KindQuotaExceeded && err != ErrCircuitOpen {
		return false
	}
	common.LoggerFromContext(ctx).Log("WARN", "Mapping provider degraded, using Haversine fallback", map[string]interface{}{
		"operation": operation,
		"error":     err.Error(),
	})
	p.onFallback()
	return true
}
