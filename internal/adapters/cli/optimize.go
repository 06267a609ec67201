package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewOptimizeCommand creates the optimize command
func NewOptimizeCommand() *cobra.Command {
	var (
		orders    []string
		vehicles  []string
		drivers   []string
		depot     string
		date      string
		timeLimit int
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Plan routes for a set of pending orders",
		Long: `Run the VRPTW solver over the given orders, vehicles and drivers and
persist the resulting routes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, lon, err := parseLatLon(depot)
			if err != nil {
				return err
			}

			body := map[string]interface{}{
				"order_ids":   orders,
				"vehicle_ids": vehicles,
				"driver_ids":  drivers,
				"depot":       []float64{lat, lon},
			}
			if date != "" {
				body["planned_date"] = date
			}
			if timeLimit > 0 {
				body["time_limit_s"] = timeLimit
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			var result struct {
				RoutesCreated    int      `json:"routes_created"`
				RouteIDs         []string `json:"route_ids"`
				TotalDistanceKm  float64  `json:"total_distance_km"`
				TotalDurationMin float64  `json:"total_duration_min"`
				ObjectiveValue   float64  `json:"objective_value"`
				SolverStats      struct {
					OrdersAssigned   int  `json:"orders_assigned"`
					OrdersUnassigned int  `json:"orders_unassigned"`
					TimedOut         bool `json:"timed_out"`
				} `json:"solver_stats"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Post(ctx, "/routes/optimize", body, &result); err != nil {
				return err
			}

			fmt.Printf("✓ Created %d route(s)\n", result.RoutesCreated)
			for _, id := range result.RouteIDs {
				fmt.Printf("  Route: %s\n", id)
			}
			fmt.Printf("  Distance:  %.1f km\n", result.TotalDistanceKm)
			fmt.Printf("  Duration:  %.0f min\n", result.TotalDurationMin)
			fmt.Printf("  Objective: %.2f\n", result.ObjectiveValue)
			fmt.Printf("  Assigned:  %d (unassigned %d)\n",
				result.SolverStats.OrdersAssigned, result.SolverStats.OrdersUnassigned)
			if result.SolverStats.TimedOut {
				fmt.Println("  Note: solver hit its time limit")
			}
			if verbose {
				printJSON(result)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&orders, "orders", nil, "Order IDs to plan (required)")
	cmd.Flags().StringSliceVar(&vehicles, "vehicles", nil, "Vehicle IDs to use (required)")
	cmd.Flags().StringSliceVar(&drivers, "drivers", nil, "Driver IDs to use (required)")
	cmd.Flags().StringVar(&depot, "depot", "", "Depot location as lat,lon (required)")
	cmd.Flags().StringVar(&date, "date", "", "Planned date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&timeLimit, "time-limit", 0, "Solver time limit in seconds")
	_ = cmd.MarkFlagRequired("orders")
	_ = cmd.MarkFlagRequired("vehicles")
	_ = cmd.MarkFlagRequired("drivers")
	_ = cmd.MarkFlagRequired("depot")

	return cmd
}

// parseLatLon parses a "lat,lon" pair.
func parseLatLon(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lon but got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return lat, lon, nil
}
