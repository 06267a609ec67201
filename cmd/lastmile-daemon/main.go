package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfleet/lastmile/internal/adapters/bus"
	"github.com/openfleet/lastmile/internal/adapters/geodata"
	"github.com/openfleet/lastmile/internal/adapters/httpapi"
	"github.com/openfleet/lastmile/internal/adapters/metrics"
	"github.com/openfleet/lastmile/internal/adapters/persistence"
	"github.com/openfleet/lastmile/internal/adapters/ws"
	"github.com/openfleet/lastmile/internal/application/adaptive"
	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/application/eta"
	"github.com/openfleet/lastmile/internal/application/planning"
	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/application/solver"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/infrastructure/config"
	"github.com/openfleet/lastmile/internal/infrastructure/database"
	"github.com/openfleet/lastmile/internal/infrastructure/logging"
	"github.com/openfleet/lastmile/internal/infrastructure/pidfile"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search config.yaml)")
	forceFlag := flag.Bool("force", false, "Kill any existing daemon and start a new one")
	flag.Parse()

	cfg := config.MustLoadConfig(*configPath)

	if cfg.Server.PIDFile != "" {
		pf := pidfile.New(cfg.Server.PIDFile)
		if err := pf.Acquire(); err != nil {
			if !*forceFlag {
				log.Fatalf("Failed to acquire PID file lock: %v\nUse --force to kill the existing daemon", err)
			}
			if killErr := pf.KillExisting(); killErr != nil {
				log.Fatalf("Failed to kill existing daemon: %v", killErr)
			}
			if err := pf.Acquire(); err != nil {
				log.Fatalf("Failed to acquire PID file lock after killing existing daemon: %v", err)
			}
		}
		defer func() {
			if err := pf.Release(); err != nil {
				log.Printf("Warning: failed to release PID file: %v", err)
			}
		}()
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = common.WithLogger(ctx, logger)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Log("INFO", "Database connected", map[string]interface{}{"type": cfg.Database.Type})

	// Repositories.
	orderRepo := persistence.NewGormOrderRepository(db)
	vehicleRepo := persistence.NewGormVehicleRepository(db)
	driverRepo := persistence.NewGormDriverRepository(db)
	routeRepo := persistence.NewGormRouteRepository(db)
	eventRepo := persistence.NewGormEventRepository(db, nil)

	// Metrics.
	metrics.InitRegistry()
	eventBus := bus.New(0)
	optimizerMetrics := metrics.NewOptimizerMetricsCollector()
	solverMetrics := metrics.NewSolverMetricsCollector()
	geodataMetrics := metrics.NewGeodataMetricsCollector(eventBus.Dropped)
	httpMetrics := metrics.NewHTTPMetricsCollector()
	for _, register := range []func() error{
		optimizerMetrics.Register, solverMetrics.Register,
		geodataMetrics.Register, httpMetrics.Register,
	} {
		if err := register(); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	// Geodata: provider client with an offline Haversine fallback, memoized
	// by the matrix cache.
	haversine := geodata.NewHaversineProvider(0)
	var provider routing.GeodataProvider = haversine
	if cfg.Geodata.BaseURL != "" {
		client := geodata.NewClient(geodata.ClientConfig{
			BaseURL:           cfg.Geodata.BaseURL,
			APIKey:            cfg.Geodata.APIKey,
			RequestsPerSecond: int(cfg.Geodata.RateLimit.RequestsPerSecond),
			Burst:             cfg.Geodata.RateLimit.Burst,
			MaxFailures:       cfg.Geodata.Breaker.FailureThreshold,
			BreakerTimeout:    cfg.Geodata.Breaker.ResetTimeout,
		}, nil)
		provider = geodata.NewResilientProvider(client, haversine).WithCounter(geodataMetrics.Fallback)
		logger.Log("INFO", "Geodata provider configured", map[string]interface{}{"base_url": cfg.Geodata.BaseURL})
	} else {
		logger.Log("WARN", "No geodata provider configured, using Haversine estimates", nil)
	}
	matrixCache := geodata.NewMatrixCache(provider, cfg.Geodata.CacheTTL).
		WithCounters(geodataMetrics.CacheHit, geodataMetrics.CacheMiss)

	vrptwSolver := solver.New(matrixCache, nil)
	predictor := eta.ForConfig(ctx, cfg.ETA.Predictor, cfg.ETA.ModelPath)

	var simulator *simulation.Simulator
	if cfg.Simulation.Enabled {
		simulator = simulation.New(eventBus, routeRepo, simulation.Params{
			UpdateInterval:   cfg.Simulation.UpdateInterval,
			Speed:            cfg.Simulation.Speed,
			MinEventDuration: cfg.Simulation.MinEventDuration,
			MaxEventDuration: cfg.Simulation.MaxEventDuration,
			Seed:             cfg.Simulation.Seed,
		}, nil)
	}

	planner := planning.NewService(planning.Deps{
		Orders:   orderRepo,
		Vehicles: vehicleRepo,
		Drivers:  driverRepo,
		Routes:   routeRepo,
		Solver:   vrptwSolver,
		Bus:      eventBus,
		Recorder: solverMetrics,
	})

	var conditions planning.ConditionSource
	if simulator != nil {
		conditions = simulator
	}
	etaService := planning.NewETAService(routeRepo, vehicleRepo, driverRepo, predictor, conditions, nil)

	optimizer := adaptive.New(adaptive.Config{
		MonitorInterval:    cfg.Optimizer.MonitorInterval,
		DelayThreshold:     cfg.Optimizer.DelayThreshold,
		TrafficThreshold:   cfg.Optimizer.TrafficThreshold,
		Cooldown:           cfg.Optimizer.Cooldown,
		GlobalMargin:       cfg.Optimizer.GlobalMargin,
		SegmentTimeLimit:   cfg.Solver.SegmentTimeLimit,
		EmergencyTimeLimit: cfg.Optimizer.EmergencyTimeLimit,
		StuckDeadline:      cfg.Optimizer.StuckDeadline,
		UrgentRadiusKm:     cfg.Optimizer.UrgentRadiusKm,
		Weights:            routing.ObjectiveWeights{Alpha: cfg.Solver.Alpha, Beta: cfg.Solver.Beta, Gamma: cfg.Solver.Gamma},
	}, adaptive.Deps{
		Routes:     routeRepo,
		Orders:     orderRepo,
		Vehicles:   vehicleRepo,
		Drivers:    driverRepo,
		Solver:     vrptwSolver,
		Bus:        eventBus,
		Conditions: simulatorConditions(simulator),
		Recorder:   optimizerMetrics,
	})

	wsHandler := ws.NewHandler(eventBus, etaService, cfg.Server.WSHeartbeat, nil, logger)

	serverDeps := httpapi.Deps{
		Planner:     planner,
		ETA:         etaService,
		Routes:      routeRepo,
		Orders:      orderRepo,
		Events:      eventRepo,
		Bus:         eventBus,
		Reoptimizer: optimizer,
		Geodata:     provider,
		HTTPMetrics: httpMetrics,
		WS:          wsHandler.Routes(),
		Logger:      logger,
	}
	if simulator != nil {
		serverDeps.Simulator = simulator
	}
	apiServer := httpapi.NewServer(cfg.Server, serverDeps)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	archiver := bus.NewArchiver(eventBus, eventRepo)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return archiver.Run(gctx) })
	g.Go(func() error { return optimizer.Run(gctx) })
	g.Go(func() error {
		logger.Log("INFO", "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if simulator != nil {
		simulator.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			simulator.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Log("INFO", "Daemon stopped", nil)
	return nil
}

// simulatorConditions avoids handing the optimizer a typed-nil interface.
func simulatorConditions(sim *simulation.Simulator) adaptive.ConditionSource {
	if sim == nil {
		return nil
	}
	return sim
}
