package geodata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key", RequestsPerSecond: 1000}, nil)
}

func coord(t *testing.T, lat, lon float64) shared.Coordinate {
	t.Helper()
	c, err := shared.NewCoordinate(lat, lon)
	require.NoError(t, err)
	return c
}

func TestClient_Matrix_ParsesWireFormat(t *testing.T) {
	var gotOrigins, gotDestinations, gotMode string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matrix", r.URL.Path)
		gotOrigins = r.URL.Query().Get("origins")
		gotDestinations = r.URL.Query().Get("destinations")
		gotMode = r.URL.Query().Get("mode")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"rows": [
				{"elements": [
					{"distance": {"value": 0}, "duration": {"value": 0}, "duration_in_traffic": {"value": 0}, "status": "OK"},
					{"distance": {"value": 5200}, "duration": {"value": 480}, "duration_in_traffic": {"value": 660}, "status": "OK"}
				]},
				{"elements": [
					{"distance": {"value": 4900}, "duration": {"value": 450}, "duration_in_traffic": {"value": 450}, "status": "OK"},
					{"distance": {"value": 0}, "duration": {"value": 0}, "duration_in_traffic": {"value": 0}, "status": "OK"}
				]}
			]
		}`))
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405), coord(t, 52.5, 13.39)}
	m, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.NoError(t, err)
	assert.Equal(t, "13.405000,52.520000|13.390000,52.500000", gotOrigins, "origins travel as pipe-joined lon,lat")
	assert.Equal(t, gotOrigins, gotDestinations)
	assert.Equal(t, "driving", gotMode)
	assert.Equal(t, 5200, m.DistanceM[0][1])
	assert.Equal(t, 480, m.TimeS[0][1])
	assert.Equal(t, 660, m.TrafficTimeS[0][1])
	// Asymmetry survives the round trip.
	assert.Equal(t, 4900, m.DistanceM[1][0])
	assert.False(t, m.Degraded)
}

func TestClient_Matrix_UnreachableCellsGetSentinel(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"rows": [
				{"elements": [
					{"distance": {"value": 0}, "duration": {"value": 0}, "status": "OK"},
					{"status": "ZERO_RESULTS"}
				]},
				{"elements": [
					{"status": "NOT_FOUND"},
					{"distance": {"value": 0}, "duration": {"value": 0}, "status": "OK"}
				]}
			]
		}`))
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405), coord(t, 60.17, 24.94)}
	m, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.NoError(t, err)
	assert.Equal(t, 999999, m.DistanceM[0][1])
	assert.Equal(t, 999999, m.TimeS[0][1])
	assert.Equal(t, 999999, m.TrafficTimeS[0][1])
	assert.Equal(t, 999999, m.DistanceM[1][0])
}

func TestClient_Matrix_MissingTrafficFallsBackToDuration(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"rows": [{"elements": [{"distance": {"value": 1000}, "duration": {"value": 120}, "status": "OK"}]}]
		}`))
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405)}
	m, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.NoError(t, err)
	assert.Equal(t, 120, m.TrafficTimeS[0][0])
}

func TestClient_Matrix_RateLimitMapsToQuotaExceeded(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405)}
	_, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindQuotaExceeded))
}

func TestClient_Matrix_ServerErrorMapsToServiceUnavailable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405)}
	_, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindServiceUnavailable))
}

func TestClient_Matrix_RowCountMismatchFails(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rows": []}`))
	})

	points := []shared.Coordinate{coord(t, 52.52, 13.405)}
	_, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindServiceUnavailable))
}

func TestClient_Geocode(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode", r.URL.Path)
		assert.Equal(t, "Alexanderplatz 1, Berlin", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"results": [{"lat": 52.5219, "lon": 13.4132}]}`))
	})

	got, err := client.Geocode(context.Background(), "Alexanderplatz 1, Berlin")

	require.NoError(t, err)
	assert.InDelta(t, 52.5219, got.Lat, 1e-9)
	assert.InDelta(t, 13.4132, got.Lon, 1e-9)
}

func TestClient_Geocode_NoResults(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	_, err := client.Geocode(context.Background(), "nowhere at all")

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindResourceNotFound))
}

func TestClient_Route(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("depart_at"))
		_, _ = w.Write([]byte(`{
			"polyline": "abc123",
			"distance": {"value": 8400},
			"duration": {"value": 900},
			"duration_in_traffic": {"value": 1260},
			"segments": [{"level": 7, "speed_kmh": 18.5, "length_m": 1200}]
		}`))
	})

	got, err := client.Route(context.Background(),
		coord(t, 52.52, 13.405), coord(t, 52.5, 13.39), nil,
		time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), dispatch.VehicleKindDriving)

	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Polyline)
	assert.Equal(t, 8400, got.DistanceM)
	assert.InDelta(t, 1.4, got.TrafficFactor(), 0.001)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, 7, got.Segments[0].Level)
}

func TestClient_CircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	points := []shared.Coordinate{coord(t, 52.52, 13.405)}

	for i := 0; i < 5; i++ {
		_, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)
		require.Error(t, err)
	}

	_, err := client.Matrix(context.Background(), points, points, time.Time{}, dispatch.VehicleKindDriving)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, client.breaker.State())
}
