package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/tempo-operator/pkg/client"
	"github.com/cuemby/tempo-operator/pkg/types"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Query or drive a running operator",
}

var listReceiversCmd = &cobra.Command{
	Use:   "list-receivers",
	Short: "List the receivers the workload currently accepts traces on",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		format, _ := cmd.Flags().GetString("output")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		receivers, err := client.NewClient(addr).ListReceivers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list receivers: %w", err)
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			return printJSON(out, map[string]interface{}{"receivers": receivers})
		}
		printReceivers(out, receivers)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status reported by the last reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		report, err := client.NewClient(addr).Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Request a reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		if err := client.NewClient(addr).Reconcile(ctx); err != nil {
			return fmt.Errorf("failed to trigger reconciliation: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Reconciliation triggered")
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent operator events",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		evts, err := client.NewClient(addr).Events(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tMESSAGE")
		for _, e := range evts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Message)
		}
		return w.Flush()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the gRPC health service",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("grpc-addr")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		status, err := client.CheckHealth(ctx, addr)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("operator is %s", strings.ToLower(status.String()))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{listReceiversCmd, statusCmd, reconcileCmd, eventsCmd} {
		c.Flags().String("addr", "127.0.0.1:8080", "Operator API address")
		actionCmd.AddCommand(c)
	}
	listReceiversCmd.Flags().StringP("output", "o", "table", "Output format (table, json)")
	eventsCmd.Flags().Int("limit", 20, "Number of events to show")

	healthCmd.Flags().String("grpc-addr", "127.0.0.1:8081", "Operator gRPC health address")
	actionCmd.AddCommand(healthCmd)
}

func printReceivers(out io.Writer, receivers []types.ReceiverSpec) {
	if len(receivers) == 0 {
		fmt.Fprintln(out, "No receivers enabled")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL\tPORT\tPATH\tTLS")
	for _, r := range receivers {
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", r.Protocol, r.Port, r.Path, r.TLSRequired)
	}
	w.Flush()
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
