package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 10
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.WSHeartbeat == 0 {
		cfg.Server.WSHeartbeat = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.PIDFile == "" {
		cfg.Server.PIDFile = "/tmp/lastmile-daemon.pid"
	}

	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "lastmile"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "lastmile"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Geodata defaults
	if cfg.Geodata.Timeout == 0 {
		cfg.Geodata.Timeout = 10 * time.Second
	}
	if cfg.Geodata.RateLimit.RequestsPerSecond == 0 {
		cfg.Geodata.RateLimit.RequestsPerSecond = 10
	}
	if cfg.Geodata.RateLimit.Burst == 0 {
		cfg.Geodata.RateLimit.Burst = 10
	}
	if cfg.Geodata.Breaker.FailureThreshold == 0 {
		cfg.Geodata.Breaker.FailureThreshold = 5
	}
	if cfg.Geodata.Breaker.ResetTimeout == 0 {
		cfg.Geodata.Breaker.ResetTimeout = 60 * time.Second
	}
	if cfg.Geodata.CacheTTL == 0 {
		cfg.Geodata.CacheTTL = 24 * time.Hour
	}
	if cfg.Geodata.MaxRowsPerRequest == 0 {
		cfg.Geodata.MaxRowsPerRequest = 25
	}

	// Solver defaults
	if cfg.Solver.TimeLimit == 0 {
		cfg.Solver.TimeLimit = 30 * time.Second
	}
	if cfg.Solver.SegmentTimeLimit == 0 {
		cfg.Solver.SegmentTimeLimit = 5 * time.Second
	}
	if cfg.Solver.Alpha == 0 && cfg.Solver.Beta == 0 && cfg.Solver.Gamma == 0 {
		cfg.Solver.Alpha = 0.6
		cfg.Solver.Beta = 0.3
		cfg.Solver.Gamma = 0.1
	}

	// ETA defaults
	if cfg.ETA.Predictor == "" {
		cfg.ETA.Predictor = "model"
	}

	// Optimizer defaults
	if cfg.Optimizer.MonitorInterval == 0 {
		cfg.Optimizer.MonitorInterval = 60 * time.Second
	}
	if cfg.Optimizer.DelayThreshold == 0 {
		cfg.Optimizer.DelayThreshold = 15 * time.Minute
	}
	if cfg.Optimizer.TrafficThreshold == 0 {
		cfg.Optimizer.TrafficThreshold = 1.5
	}
	if cfg.Optimizer.Cooldown == 0 {
		cfg.Optimizer.Cooldown = 30 * time.Minute
	}
	if cfg.Optimizer.GlobalMargin == 0 {
		cfg.Optimizer.GlobalMargin = 0.01
	}
	if cfg.Optimizer.EmergencyTimeLimit == 0 {
		cfg.Optimizer.EmergencyTimeLimit = 30 * time.Second
	}
	if cfg.Optimizer.StuckDeadline == 0 {
		cfg.Optimizer.StuckDeadline = 5 * time.Minute
	}
	if cfg.Optimizer.UrgentRadiusKm == 0 {
		cfg.Optimizer.UrgentRadiusKm = 5
	}

	// Simulation defaults
	if cfg.Simulation.UpdateInterval == 0 {
		cfg.Simulation.UpdateInterval = 10 * time.Second
	}
	if cfg.Simulation.Speed == 0 {
		cfg.Simulation.Speed = 1.0
	}
	if cfg.Simulation.MinEventDuration == 0 {
		cfg.Simulation.MinEventDuration = 5 * time.Minute
	}
	if cfg.Simulation.MaxEventDuration == 0 {
		cfg.Simulation.MaxEventDuration = 30 * time.Minute
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
