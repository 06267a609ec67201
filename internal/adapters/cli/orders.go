package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewOrdersCommand creates the orders command group
func NewOrdersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Manage customer orders",
	}
	cmd.AddCommand(newOrdersRescheduleCommand())
	return cmd
}

func newOrdersRescheduleCommand() *cobra.Command {
	var (
		start    string
		end      string
		verified bool
	)

	cmd := &cobra.Command{
		Use:   "reschedule <order-id>",
		Short: "Change an order's delivery time window",
		Long: `Update the delivery time window of an order. If the order is already on
a planned route the daemon publishes a customer_reschedule event and the
adaptive optimizer re-plans the affected route.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("invalid --start, want RFC3339: %w", err)
			}
			endTime, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("invalid --end, want RFC3339: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var result struct {
				OrderID string `json:"order_id"`
				EventID string `json:"event_id"`
			}
			client := NewDaemonClient(daemonAddr)
			body := map[string]interface{}{
				"start":             startTime,
				"end":               endTime,
				"customer_verified": verified,
			}
			if err := client.Put(ctx, "/orders/"+args[0]+"/time-window", body, &result); err != nil {
				return err
			}
			fmt.Printf("✓ Order %s rescheduled to [%s, %s] (event %s)\n",
				result.OrderID, startTime.Format("15:04"), endTime.Format("15:04"), result.EventID)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "New window start, RFC3339 (required)")
	cmd.Flags().StringVar(&end, "end", "", "New window end, RFC3339 (required)")
	cmd.Flags().BoolVar(&verified, "verified", false, "Customer confirmed the new window")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
