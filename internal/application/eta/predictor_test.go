package eta_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/application/eta"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
)

func baseInput() eta.Input {
	return eta.Input{
		DistanceKm:    10,
		TrafficFactor: 1.0,
		DepartAt:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Experience:    dispatch.ExperienceIntermediate,
		VehicleKind:   dispatch.VehicleKindDriving,
		Complexity:    1,
		WeatherFactor: 1.0,
	}
}

func TestHeuristicPredictor_BaseCase(t *testing.T) {
	p := eta.NewHeuristicPredictor()

	pred := p.Predict(context.Background(), baseInput())

	// 10 km at 40 km/h = 15 min travel + 15 min service.
	assert.InDelta(t, 30.0, pred.Minutes, 0.01)
	assert.Equal(t, eta.MethodHeuristic, pred.Method)
	assert.InDelta(t, 0.8, pred.Confidence, 0.001)
	assert.Equal(t, baseInput().DepartAt.Add(30*time.Minute), pred.ETA)
}

func TestHeuristicPredictor_TrafficSlowsAndDropsConfidence(t *testing.T) {
	p := eta.NewHeuristicPredictor()

	in := baseInput()
	in.TrafficFactor = 2.0

	pred := p.Predict(context.Background(), in)

	// Effective speed halves, travel doubles.
	assert.InDelta(t, 45.0, pred.Minutes, 0.01)
	assert.Less(t, pred.Confidence, 0.8)
}

func TestHeuristicPredictor_ConfidenceBounds(t *testing.T) {
	p := eta.NewHeuristicPredictor()

	in := baseInput()
	in.TrafficFactor = 3.0
	in.WeatherFactor = 2.0
	in.Complexity = 5

	pred := p.Predict(context.Background(), in)

	assert.GreaterOrEqual(t, pred.Confidence, 0.3)
	assert.LessOrEqual(t, pred.Confidence, 0.95)
}

func TestHeuristicPredictor_Deterministic(t *testing.T) {
	p := eta.NewHeuristicPredictor()

	a := p.Predict(context.Background(), baseInput())
	b := p.Predict(context.Background(), baseInput())

	assert.Equal(t, a, b)
}

func TestHeuristicPredictor_ExperienceMultiplier(t *testing.T) {
	p := eta.NewHeuristicPredictor()

	novice := baseInput()
	novice.Experience = dispatch.ExperienceNovice
	expert := baseInput()
	expert.Experience = dispatch.ExperienceExpert

	assert.Greater(t, p.Predict(context.Background(), novice).Minutes,
		p.Predict(context.Background(), expert).Minutes)
}

func TestModelPredictor_FallsBackUntrained(t *testing.T) {
	m := eta.NewModelPredictor()

	pred := m.Predict(context.Background(), baseInput())

	assert.Equal(t, eta.MethodHeuristic, pred.Method)
	assert.False(t, m.Trained())
}

func TestModelPredictor_TrainPredictSaveLoad(t *testing.T) {
	m := eta.NewModelPredictor()

	// Synthetic linear world: 2 minutes per km plus 12 minutes fixed.
	samples := make([]eta.Sample, 0, 40)
	for i := 1; i <= 40; i++ {
		in := baseInput()
		in.DistanceKm = float64(i)
		samples = append(samples, eta.Sample{Input: in, Minutes: 12 + 2*float64(i)})
	}
	require.NoError(t, m.Train(samples))
	require.True(t, m.Trained())

	pred := m.Predict(context.Background(), baseInput())
	assert.Equal(t, eta.MethodModel, pred.Method)
	assert.Greater(t, pred.Minutes, 0.0)

	importance := m.FeatureImportance()
	require.NotNil(t, importance)
	assert.Contains(t, importance, "distance_km")

	path := filepath.Join(t.TempDir(), "eta-model.json")
	require.NoError(t, m.Save(path))

	restored := eta.NewModelPredictor()
	require.NoError(t, restored.Load(path))
	assert.Equal(t, pred.Minutes, restored.Predict(context.Background(), baseInput()).Minutes)
}

func TestModelPredictor_TrainRejectsTinySets(t *testing.T) {
	m := eta.NewModelPredictor()
	err := m.Train([]eta.Sample{{Input: baseInput(), Minutes: 30}})
	assert.Error(t, err)
}

func TestForConfig_SelectsPredictor(t *testing.T) {
	ctx := context.Background()

	assert.IsType(t, &eta.HeuristicPredictor{}, eta.ForConfig(ctx, "heuristic", ""))
	assert.IsType(t, &eta.ModelPredictor{}, eta.ForConfig(ctx, "model", ""))
	// Unknown kinds degrade to the heuristic.
	assert.IsType(t, &eta.HeuristicPredictor{}, eta.ForConfig(ctx, "", ""))
}

func TestForConfig_RestoresSavedModel(t *testing.T) {
	trained := eta.NewModelPredictor()
	samples := make([]eta.Sample, 0, 40)
	for i := 1; i <= 40; i++ {
		in := baseInput()
		in.DistanceKm = float64(i)
		samples = append(samples, eta.Sample{Input: in, Minutes: 12 + 2*float64(i)})
	}
	require.NoError(t, trained.Train(samples))
	path := filepath.Join(t.TempDir(), "eta-model.json")
	require.NoError(t, trained.Save(path))

	p := eta.ForConfig(context.Background(), "model", path)
	model, ok := p.(*eta.ModelPredictor)
	require.True(t, ok)
	assert.True(t, model.Trained())

	// A missing weights file still serves heuristic predictions.
	broken := eta.ForConfig(context.Background(), "model", filepath.Join(t.TempDir(), "missing.json"))
	pred := broken.Predict(context.Background(), baseInput())
	assert.Equal(t, eta.MethodHeuristic, pred.Method)
}
