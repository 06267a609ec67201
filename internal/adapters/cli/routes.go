package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// routeSummary mirrors the daemon's route JSON for display.
type routeSummary struct {
	ID                  string  `json:"id"`
	VehicleID           string  `json:"vehicle_id"`
	DriverID            string  `json:"driver_id"`
	Status              string  `json:"status"`
	CurrentStopIndex    int     `json:"current_stop_index"`
	TotalDistanceKm     float64 `json:"total_distance_km"`
	TotalDurationMin    float64 `json:"total_duration_min"`
	TotalWeightKg       float64 `json:"total_weight_kg"`
	ReoptimizationCount int     `json:"reoptimization_count"`
	Stops               []struct {
		OrderID          string    `json:"order_id"`
		Kind             string    `json:"kind"`
		Sequence         int       `json:"sequence"`
		PlannedArrival   time.Time `json:"planned_arrival"`
		PlannedDeparture time.Time `json:"planned_departure"`
		Status           string    `json:"status"`
	} `json:"stops"`
}

// NewRoutesCommand creates the routes command group
func NewRoutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect and manage planned routes",
	}
	cmd.AddCommand(newRoutesListCommand())
	cmd.AddCommand(newRoutesGetCommand())
	cmd.AddCommand(newRoutesStatusCommand())
	cmd.AddCommand(newRoutesReoptimizeCommand())
	cmd.AddCommand(newRoutesETACommand())
	return cmd
}

func newRoutesListCommand() *cobra.Command {
	var (
		date      string
		status    string
		vehicleID string
		driverID  string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routes with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if date != "" {
				query.Set("date", date)
			}
			if status != "" {
				query.Set("status", status)
			}
			if vehicleID != "" {
				query.Set("vehicle_id", vehicleID)
			}
			if driverID != "" {
				query.Set("driver_id", driverID)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				Routes []routeSummary `json:"routes"`
				Count  int            `json:"count"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/routes/", query, &result); err != nil {
				return err
			}

			if result.Count == 0 {
				fmt.Println("No routes found")
				return nil
			}
			fmt.Printf("%-38s %-12s %-12s %-13s %6s %9s %8s\n",
				"ID", "VEHICLE", "DRIVER", "STATUS", "STOPS", "KM", "REOPTS")
			for _, r := range result.Routes {
				fmt.Printf("%-38s %-12s %-12s %-13s %6d %9.1f %8d\n",
					r.ID, r.VehicleID, r.DriverID, r.Status,
					len(r.Stops), r.TotalDistanceKm, r.ReoptimizationCount)
			}
			if verbose {
				printJSON(result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Filter by planned date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "Filter by vehicle ID")
	cmd.Flags().StringVar(&driverID, "driver", "", "Filter by driver ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum routes to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")
	return cmd
}

func newRoutesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <route-id>",
		Short: "Show one route with its stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var route routeSummary
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/routes/"+args[0], nil, &route); err != nil {
				return err
			}

			fmt.Printf("Route %s\n", route.ID)
			fmt.Printf("  Vehicle:  %s\n", route.VehicleID)
			fmt.Printf("  Driver:   %s\n", route.DriverID)
			fmt.Printf("  Status:   %s (at stop %d)\n", route.Status, route.CurrentStopIndex)
			fmt.Printf("  Distance: %.1f km, %.0f min, %.1f kg\n",
				route.TotalDistanceKm, route.TotalDurationMin, route.TotalWeightKg)
			fmt.Println("  Stops:")
			for _, s := range route.Stops {
				label := s.Kind
				if s.OrderID != "" {
					label = s.OrderID
				}
				fmt.Printf("    %2d. %-38s arrive %s  %s\n",
					s.Sequence, label, s.PlannedArrival.Format("15:04"), s.Status)
			}
			if verbose {
				printJSON(route)
			}
			return nil
		},
	}
}

func newRoutesStatusCommand() *cobra.Command {
	var (
		status    string
		stopIndex int
		location  string
	)

	cmd := &cobra.Command{
		Use:   "status <route-id>",
		Short: "Transition a route's execution status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"status": status}
			if cmd.Flags().Changed("stop-index") {
				body["current_stop_index"] = stopIndex
			}
			if location != "" {
				lat, lon, err := parseLatLon(location)
				if err != nil {
					return err
				}
				body["current_location"] = []float64{lat, lon}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var route routeSummary
			client := NewDaemonClient(daemonAddr)
			if err := client.Put(ctx, "/routes/"+args[0]+"/status", body, &route); err != nil {
				return err
			}
			fmt.Printf("✓ Route %s is now %s (stop %d)\n", route.ID, route.Status, route.CurrentStopIndex)
			if verbose {
				printJSON(route)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "New status (planned|active|completed|cancelled|disrupted) (required)")
	cmd.Flags().IntVar(&stopIndex, "stop-index", 0, "Current stop index")
	cmd.Flags().StringVar(&location, "location", "", "Current vehicle location as lat,lon")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newRoutesReoptimizeCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reoptimize <route-id>",
		Short: "Request a manual re-optimization of a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				RouteID string `json:"route_id"`
				Status  string `json:"status"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Post(ctx, "/routes/"+args[0]+"/reoptimize",
				map[string]string{"reason": reason}, &result); err != nil {
				return err
			}
			fmt.Printf("✓ %s: %s\n", result.RouteID, result.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the route needs re-planning (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newRoutesETACommand() *cobra.Command {
	var stopSequence int

	cmd := &cobra.Command{
		Use:   "eta <route-id>",
		Short: "Predicted arrival times for a route's remaining stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if cmd.Flags().Changed("stop") {
				query.Set("stop_sequence", strconv.Itoa(stopSequence))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				RouteID     string `json:"route_id"`
				Predictions []struct {
					Sequence         int       `json:"sequence"`
					OrderID          string    `json:"order_id"`
					PlannedArrival   time.Time `json:"planned_arrival"`
					PredictedArrival time.Time `json:"predicted_arrival"`
					Confidence       float64   `json:"confidence"`
					DelayMinutes     float64   `json:"delay_minutes"`
				} `json:"predictions"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/routes/"+args[0]+"/eta", query, &result); err != nil {
				return err
			}

			fmt.Printf("%4s %-38s %-8s %-8s %6s %6s\n",
				"SEQ", "ORDER", "PLANNED", "ETA", "DELAY", "CONF")
			for _, p := range result.Predictions {
				fmt.Printf("%4d %-38s %-8s %-8s %5.0fm %5.0f%%\n",
					p.Sequence, p.OrderID,
					p.PlannedArrival.Format("15:04"), p.PredictedArrival.Format("15:04"),
					p.DelayMinutes, p.Confidence*100)
			}
			if verbose {
				printJSON(result)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&stopSequence, "stop", 0, "Only this stop sequence")
	return cmd
}
