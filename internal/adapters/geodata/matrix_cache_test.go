package geodata

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// countingProvider delegates matrix computation to Haversine while counting
// provider calls, so tests can observe cache hits.
type countingProvider struct {
	*HaversineProvider
	calls    atomic.Int64
	degraded bool
}

func (p *countingProvider) Matrix(ctx context.Context, origins, destinations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.Matrices, error) {
	p.calls.Add(1)
	m, err := p.HaversineProvider.Matrix(ctx, origins, destinations, departAt, kind)
	if err != nil {
		return nil, err
	}
	m.Degraded = p.degraded
	return m, nil
}

func testPoints(t *testing.T) []shared.Coordinate {
	t.Helper()
	return []shared.Coordinate{
		coord(t, 52.5200, 13.4050),
		coord(t, 52.5050, 13.3900),
		coord(t, 52.5400, 13.4200),
		coord(t, 52.4900, 13.4300),
	}
}

func TestMatrixCache_SecondRequestServedFromMemory(t *testing.T) {
	provider := &countingProvider{HaversineProvider: NewHaversineProvider(40)}
	cache := NewMatrixCache(provider, time.Hour)
	points := testPoints(t)

	first, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)
	second, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)

	assert.Equal(t, int64(1), provider.calls.Load())
	assert.Equal(t, first.DistanceM, second.DistanceM)
}

func TestMatrixCache_OrderInvariantKey(t *testing.T) {
	provider := &countingProvider{HaversineProvider: NewHaversineProvider(40)}
	cache := NewMatrixCache(provider, time.Hour)
	points := testPoints(t)
	shuffled := []shared.Coordinate{points[2], points[0], points[3], points[1]}

	original, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)
	permuted, err := cache.SquareMatrix(context.Background(), shuffled, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)

	assert.Equal(t, int64(1), provider.calls.Load(), "shuffled set must hit the same entry")

	// The shuffled response is the same matrix in the caller's order:
	// shuffled index i is original index perm[i].
	perm := []int{2, 0, 3, 1}
	for i := 0; i < len(points); i++ {
		for j := 0; j < len(points); j++ {
			assert.Equal(t, original.DistanceM[perm[i]][perm[j]], permuted.DistanceM[i][j])
			assert.Equal(t, original.TimeS[perm[i]][perm[j]], permuted.TimeS[i][j])
		}
	}
}

func TestMatrixCache_VehicleKindSplitsEntries(t *testing.T) {
	provider := &countingProvider{HaversineProvider: NewHaversineProvider(40)}
	cache := NewMatrixCache(provider, time.Hour)
	points := testPoints(t)

	_, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)
	_, err = cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindTruck)
	require.NoError(t, err)

	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestMatrixCache_DegradedMatricesAreNotCached(t *testing.T) {
	provider := &countingProvider{HaversineProvider: NewHaversineProvider(40), degraded: true}
	cache := NewMatrixCache(provider, time.Hour)
	points := testPoints(t)

	first, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)
	assert.True(t, first.Degraded)

	_, err = cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load(), "degraded result must be recomputed")
}

func TestMatrixCache_LargeSetFetchedInBlocks(t *testing.T) {
	provider := &countingProvider{HaversineProvider: NewHaversineProvider(40)}
	cache := NewMatrixCache(provider, time.Hour)

	points := make([]shared.Coordinate, 0, 60)
	for i := 0; i < 60; i++ {
		points = append(points, coord(t, 52.4+float64(i)*0.001, 13.3+float64(i)*0.002))
	}

	m, err := cache.SquareMatrix(context.Background(), points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)

	assert.Equal(t, 60, m.Dimension())
	assert.Equal(t, int64(3), provider.calls.Load(), "60 rows split into 25+25+10")
	// Spot-check a cell against the direct computation.
	assert.Equal(t, points[0].DistanceM(points[59]), m.DistanceM[0][59])
}

func TestMatrixCache_EmptySetRejected(t *testing.T) {
	cache := NewMatrixCache(NewHaversineProvider(40), time.Hour)

	_, err := cache.SquareMatrix(context.Background(), nil, time.Time{}, dispatch.VehicleKindDriving)

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
}

func TestHaversineProvider_MatrixIsSymmetricAndDegraded(t *testing.T) {
	provider := NewHaversineProvider(40)
	points := testPoints(t)

	m, err := provider.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)
	require.NoError(t, err)

	assert.True(t, m.Degraded)
	for i := range points {
		assert.Zero(t, m.DistanceM[i][i])
		for j := range points {
			assert.Equal(t, m.DistanceM[i][j], m.DistanceM[j][i])
			assert.Equal(t, m.TimeS[i][j], m.TimeS[j][i])
		}
	}
	// 40 km/h means seconds = meters * 0.09.
	assert.InDelta(t, float64(m.DistanceM[0][1])*0.09, float64(m.TimeS[0][1]), 1.0)
}

func TestResilientProvider_FallsBackWhenPrimaryUnavailable(t *testing.T) {
	primary := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	resilient := NewResilientProvider(primary, NewHaversineProvider(40))
	points := testPoints(t)

	m, err := resilient.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.NoError(t, err)
	assert.True(t, m.Degraded)
}
