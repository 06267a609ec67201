package geodata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

const (
	defaultMatrixTTL = 24 * time.Hour
	// maxRowsPerRequest bounds a single provider matrix call; larger sets are
	// fetched as row blocks in parallel.
	maxRowsPerRequest = 25
)

// MatrixCache memoizes square matrices over unordered location sets (C2).
// The cache key is derived from the sorted coordinate set and vehicle kind,
// so two requests over the same locations hit the same entry regardless of
// order; the cached canonical matrix is permuted back to the caller's order.
type MatrixCache struct {
	provider routing.GeodataProvider
	cache    *gocache.Cache
	hits     func()
	misses   func()
}

var _ routing.MatrixSource = (*MatrixCache)(nil)

type cachedMatrix struct {
	matrices *routing.Matrices
}

// matrixKey is the hashed identity of a canonical matrix request. Departure
// time is deliberately excluded; staleness is governed by the TTL.
type matrixKey struct {
	Points []shared.Coordinate
	Kind   dispatch.VehicleKind
}

// NewMatrixCache creates a matrix cache in front of provider. ttl defaults
// to 24h when non-positive.
func NewMatrixCache(provider routing.GeodataProvider, ttl time.Duration) *MatrixCache {
	if ttl <= 0 {
		ttl = defaultMatrixTTL
	}
	return &MatrixCache{
		provider: provider,
		cache:    gocache.New(ttl, ttl/4),
		hits:     func() {},
		misses:   func() {},
	}
}

// WithCounters wires hit/miss counters (prometheus in production).
func (mc *MatrixCache) WithCounters(onHit, onMiss func()) *MatrixCache {
	if onHit != nil {
		mc.hits = onHit
	}
	if onMiss != nil {
		mc.misses = onMiss
	}
	return mc
}

// SquareMatrix returns the pairwise matrices over locations, serving repeat
// requests for the same unordered set from memory.
func (mc *MatrixCache) SquareMatrix(ctx context.Context, locations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.Matrices, error) {
	if len(locations) == 0 {
		return nil, shared.NewDomainError(shared.KindInvalidInput, "matrix request needs at least one location")
	}

	canonical, positions := canonicalize(locations)
	key, err := cacheKey(canonical, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to hash matrix key: %w", err)
	}

	if entry, ok := mc.cache.Get(key); ok {
		mc.hits()
		return permute(entry.(cachedMatrix).matrices, positions), nil
	}
	mc.misses()

	m, err := mc.fetch(ctx, canonical, departAt, kind)
	if err != nil {
		return nil, err
	}

	// Degraded fallback matrices are served but not cached, so the provider
	// gets retried once it recovers.
	if !m.Degraded {
		mc.cache.Set(key, cachedMatrix{matrices: m}, gocache.DefaultExpiration)
	} else {
		common.LoggerFromContext(ctx).Log("WARN", "Serving degraded matrix without caching", map[string]interface{}{
			"locations": len(locations),
			"kind":      string(kind),
		})
	}
	return permute(m, positions), nil
}

// fetch computes the canonical square matrix, splitting large sets into row
// blocks fetched concurrently.
func (mc *MatrixCache) fetch(ctx context.Context, points []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.Matrices, error) {
	n := len(points)
	if n <= maxRowsPerRequest {
		return mc.provider.Matrix(ctx, points, points, departAt, kind)
	}

	result := &routing.Matrices{
		DistanceM:    make([][]int, n),
		TimeS:        make([][]int, n),
		TrafficTimeS: make([][]int, n),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	degraded := make([]bool, (n+maxRowsPerRequest-1)/maxRowsPerRequest)

	for block := 0; block*maxRowsPerRequest < n; block++ {
		start := block * maxRowsPerRequest
		end := start + maxRowsPerRequest
		if end > n {
			end = n
		}
		blockIdx := block
		g.Go(func() error {
			part, err := mc.provider.Matrix(gctx, points[start:end], points, departAt, kind)
			if err != nil {
				return err
			}
			degraded[blockIdx] = part.Degraded
			for i := start; i < end; i++ {
				result.DistanceM[i] = part.DistanceM[i-start]
				result.TimeS[i] = part.TimeS[i-start]
				result.TrafficTimeS[i] = part.TrafficTimeS[i-start]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, d := range degraded {
		if d {
			result.Degraded = true
			break
		}
	}
	return result, nil
}

// canonicalize sorts the locations by (lat, lon) and returns, for every
// request index, the position of that location in the sorted order.
// Duplicates are matched greedily so each request index maps to a distinct
// canonical index.
func canonicalize(locations []shared.Coordinate) ([]shared.Coordinate, []int) {
	order := make([]int, len(locations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		la, lb := locations[order[a]], locations[order[b]]
		if la.Lat != lb.Lat {
			return la.Lat < lb.Lat
		}
		return la.Lon < lb.Lon
	})

	canonical := make([]shared.Coordinate, len(locations))
	positions := make([]int, len(locations))
	for canonicalIdx, requestIdx := range order {
		canonical[canonicalIdx] = locations[requestIdx]
		positions[requestIdx] = canonicalIdx
	}
	return canonical, positions
}

func cacheKey(canonical []shared.Coordinate, kind dispatch.VehicleKind) (string, error) {
	hash, err := hashstructure.Hash(matrixKey{Points: canonical, Kind: kind}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("matrix:%d", hash), nil
}

// permute rewrites a canonical-order matrix into the caller's order.
func permute(m *routing.Matrices, positions []int) *routing.Matrices {
	n := len(positions)
	out := &routing.Matrices{
		DistanceM:    make([][]int, n),
		TimeS:        make([][]int, n),
		TrafficTimeS: make([][]int, n),
		Degraded:     m.Degraded,
	}
	for i := 0; i < n; i++ {
		out.DistanceM[i] = make([]int, n)
		out.TimeS[i] = make([]int, n)
		out.TrafficTimeS[i] = make([]int, n)
		for j := 0; j < n; j++ {
			ci, cj := positions[i], positions[j]
			out.DistanceM[i][j] = m.DistanceM[ci][cj]
			out.TimeS[i][j] = m.TimeS[ci][cj]
			out.TrafficTimeS[i][j] = m.TrafficTimeS[ci][cj]
		}
	}
	return out
}
