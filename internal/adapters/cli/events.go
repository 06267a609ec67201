package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewEventsCommand creates the events command
func NewEventsCommand() *cobra.Command {
	var (
		kind       string
		severity   string
		routeID    string
		activeOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded real-time events",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if kind != "" {
				query.Set("kind", kind)
			}
			if severity != "" {
				query.Set("severity", severity)
			}
			if routeID != "" {
				query.Set("route_id", routeID)
			}
			if activeOnly {
				query.Set("active_only", "true")
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				Events []struct {
					ID                    string    `json:"id"`
					Kind                  string    `json:"kind"`
					Severity              string    `json:"severity"`
					Status                string    `json:"status"`
					Timestamp             time.Time `json:"timestamp"`
					RouteID               string    `json:"route_id"`
					EstimatedDelayMinutes int       `json:"estimated_delay_minutes"`
				} `json:"events"`
				Count int `json:"count"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/events", query, &result); err != nil {
				return err
			}

			if result.Count == 0 {
				fmt.Println("No events")
				return nil
			}
			fmt.Printf("%-20s %-25s %-9s %-9s %-38s %6s\n",
				"TIME", "KIND", "SEVERITY", "STATUS", "ROUTE", "DELAY")
			for _, e := range result.Events {
				fmt.Printf("%-20s %-25s %-9s %-9s %-38s %5dm\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind,
					e.Severity, e.Status, e.RouteID, e.EstimatedDelayMinutes)
			}
			if verbose {
				printJSON(result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by event kind")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity (low|medium|high|critical)")
	cmd.Flags().StringVar(&routeID, "route", "", "Filter by route ID")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "Only unresolved events")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to return")
	return cmd
}
