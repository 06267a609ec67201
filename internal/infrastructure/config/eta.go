package config

// ETAConfig selects the arrival-time predictor.
type ETAConfig struct {
	// Predictor is "heuristic" or "model".
	Predictor string `mapstructure:"predictor" validate:"omitempty,oneof=heuristic model"`

	// ModelPath restores saved model weights at boot when set. A model that
	// fails to load serves heuristic predictions until trained.
	ModelPath string `mapstructure:"model_path"`
}
