package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
)

// Sample is one historical observation used to fit the model.
type Sample struct {
	Input   Input   `json:"input"`
	Minutes float64 `json:"minutes"`
}

// ModelPredictor is a ridge-regularized linear regressor over trip features.
// Until trained it delegates to the heuristic predictor.
type ModelPredictor struct {
	mu       sync.RWMutex
	weights  []float64
	trained  bool
	fallback *HeuristicPredictor
}

// NewModelPredictor creates an untrained model predictor.
func NewModelPredictor() *ModelPredictor {
	return &ModelPredictor{fallback: NewHeuristicPredictor()}
}

var _ Predictor = (*ModelPredictor)(nil)

const modelFeatures = 7

// features extracts the regression feature vector (bias term first).
func features(in Input) []float64 {
	in = normalize(in)
	hour := float64(in.DepartAt.UTC().Hour())
	weekday := float64(in.DepartAt.UTC().Weekday())
	truck := 0.0
	if in.VehicleKind == dispatch.VehicleKindTruck {
		truck = 1.0
	}
	return []float64{
		1, // bias
		in.DistanceKm,
		in.DistanceKm * in.TrafficFactor,
		hour / 24,
		weekday / 7,
		in.Experience.SpeedMultiplier(),
		in.Complexity,
		truck,
	}[:modelFeatures+1]
}

// Train fits the model with gradient descent. Deterministic: fixed iteration
// count and ordering, no randomness.
func (m *ModelPredictor) Train(samples []Sample) error {
	if len(samples) < 10 {
		return fmt.Errorf("need at least 10 samples to train, got %d", len(samples))
	}

	n := modelFeatures + 1
	w := make([]float64, n)
	const (
		epochs = 500
		lr     = 1e-3
		ridge  = 1e-2
	)

	for epoch := 0; epoch < epochs; epoch++ {
		grad := make([]float64, n)
		for _, s := range samples {
			x := features(s.Input)
			pred := dot(w, x)
			err := pred - s.Minutes
			for j := range grad {
				grad[j] += err * x[j]
			}
		}
		scale := lr / float64(len(samples))
		for j := range w {
			w[j] -= scale * (grad[j] + ridge*w[j])
		}
	}

	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("training diverged")
		}
	}

	m.mu.Lock()
	m.weights = w
	m.trained = true
	m.mu.Unlock()
	return nil
}

// Trained reports whether the model has fitted weights.
func (m *ModelPredictor) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// FeatureImportance returns the absolute weight per feature name.
func (m *ModelPredictor) FeatureImportance() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil
	}
	names := []string{"bias", "distance_km", "distance_traffic", "hour", "weekday", "experience", "complexity", "truck"}
	out := make(map[string]float64, len(m.weights))
	for i, w := range m.weights {
		if i < len(names) {
			out[names[i]] = math.Abs(w)
		}
	}
	return out
}

// Predict uses the fitted model, or the heuristic when untrained.
func (m *ModelPredictor) Predict(ctx context.Context, in Input) Prediction {
	m.mu.RLock()
	trained := m.trained
	w := m.weights
	m.mu.RUnlock()

	if !trained {
		return m.fallback.Predict(ctx, in)
	}

	in = normalize(in)
	minutes := dot(w, features(in))
	if minutes < 1 {
		minutes = 1
	}

	// Model confidence degrades with the same signals as the heuristic but
	// starts higher because it was fit on observed data.
	confidence := 0.9
	if in.TrafficFactor > 1.5 {
		confidence -= 0.1
	}
	if in.WeatherFactor > 1.3 {
		confidence -= 0.1
	}

	svc := serviceMinutes(in.Complexity)
	if svc > minutes {
		svc = minutes
	}
	return Prediction{
		ETA:            in.DepartAt.Add(time.Duration(minutes * float64(time.Minute))),
		Minutes:        minutes,
		ServiceMinutes: svc,
		Confidence:     clampConfidence(confidence),
		Method:         MethodModel,
	}
}

type modelState struct {
	Weights []float64 `json:"weights"`
}

// Save writes the fitted weights to path as JSON.
func (m *ModelPredictor) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return fmt.Errorf("model is not trained")
	}
	data, err := json.Marshal(modelState{Weights: m.weights})
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load restores fitted weights from path.
func (m *ModelPredictor) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}
	var state modelState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal model: %w", err)
	}
	if len(state.Weights) != modelFeatures+1 {
		return fmt.Errorf("model file has %d weights, want %d", len(state.Weights), modelFeatures+1)
	}
	m.mu.Lock()
	m.weights = state.Weights
	m.trained = true
	m.mu.Unlock()
	return nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
