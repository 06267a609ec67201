package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewSimulateCommand creates the simulate command group controlling the
// daemon's condition simulator.
func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Control the real-time condition simulator",
	}
	cmd.AddCommand(newSimulateStartCommand())
	cmd.AddCommand(newSimulateStopCommand())
	cmd.AddCommand(newSimulateForceEventCommand())
	cmd.AddCommand(newSimulateConditionsCommand())
	return cmd
}

func newSimulateStartCommand() *cobra.Command {
	var speed float64

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the simulator (no-op when already running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			client := NewDaemonClient(daemonAddr)
			if cmd.Flags().Changed("speed") {
				if err := client.Post(ctx, "/simulation/parameters",
					map[string]float64{"speed": speed}, nil); err != nil {
					return err
				}
			}
			var result struct {
				Status string `json:"status"`
			}
			if err := client.Post(ctx, "/simulation/start", nil, &result); err != nil {
				return err
			}
			fmt.Printf("✓ Simulator %s\n", result.Status)
			return nil
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 1, "Simulation speed multiplier")
	return cmd
}

func newSimulateStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the simulator and restore conditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				Status string `json:"status"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Post(ctx, "/simulation/stop", nil, &result); err != nil {
				return err
			}
			fmt.Printf("✓ Simulator %s\n", result.Status)
			return nil
		},
	}
}

func newSimulateForceEventCommand() *cobra.Command {
	var (
		kind      string
		overrides string
	)

	cmd := &cobra.Command{
		Use:   "force-event",
		Short: "Inject one event immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"kind": kind}
			if overrides != "" {
				var parsed map[string]interface{}
				if err := json.Unmarshal([]byte(overrides), &parsed); err != nil {
					return fmt.Errorf("invalid --overrides JSON: %w", err)
				}
				body["overrides"] = parsed
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var ev struct {
				ID       string `json:"id"`
				Kind     string `json:"kind"`
				Severity string `json:"severity"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Post(ctx, "/simulation/force-event", body, &ev); err != nil {
				return err
			}
			fmt.Printf("✓ Injected %s (%s) as %s\n", ev.Kind, ev.Severity, ev.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Event kind, e.g. traffic_delay (required)")
	cmd.Flags().StringVar(&overrides, "overrides", "", "Field overrides as a JSON object")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newSimulateConditionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conditions",
		Short: "Show the current simulated condition snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var snapshot map[string]interface{}
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/simulation/conditions", nil, &snapshot); err != nil {
				return err
			}
			printJSON(snapshot)
			return nil
		},
	}
}
