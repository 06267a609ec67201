package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewHealthCommand creates the health command
func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var result struct {
				Status string `json:"status"`
			}
			client := NewDaemonClient(daemonAddr)
			if err := client.Get(ctx, "/healthz", nil, &result); err != nil {
				return err
			}
			fmt.Printf("✓ Daemon at %s is %s\n", daemonAddr, result.Status)
			return nil
		},
	}
}
