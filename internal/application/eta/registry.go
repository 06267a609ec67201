package eta

import (
	"context"

	"github.com/openfleet/lastmile/internal/application/common"
)

// ForConfig selects the boot-time predictor. kind is "heuristic" or "model";
// modelPath optionally restores saved weights. A model that fails to load
// still works, serving heuristic predictions until trained.
func ForConfig(ctx context.Context, kind, modelPath string) Predictor {
	logger := common.LoggerFromContext(ctx)

	if kind != "model" {
		return NewHeuristicPredictor()
	}

	model := NewModelPredictor()
	if modelPath != "" {
		if err := model.Load(modelPath); err != nil {
			logger.Log("WARN", "Failed to load ETA model, serving heuristic until trained", map[string]interface{}{
				"path":  modelPath,
				"error": err.Error(),
			})
		}
	}
	return model
}
