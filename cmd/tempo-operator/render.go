package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/synth"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the workload configuration for the current relation data",
	Long: `Render reads the relation databags from the configured relations
directory and prints the workload configuration a pass would write.

Certificates come from the certificates relation only; issuer state kept by
a running operator is not consulted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logForwarding, _ := cmd.Flags().GetBool("log-forwarding")

		snap, err := relation.NewFileSource(cfg.Relations.Dir).Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read relations: %w", err)
		}

		wc := synth.Synthesize(relation.NormalizeAll(snap, time.Now()), cfg)
		if err := synth.Check(wc); err != nil {
			return err
		}

		var out []byte
		if logForwarding {
			out, err = synth.RenderLogForwarding(wc)
		} else {
			out, err = synth.Render(wc, synth.TLSFilesIn(cfg.Paths.CertDir))
		}
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	renderCmd.Flags().Bool("log-forwarding", false, "Render the log forwarding layer instead of the workload configuration")
}
