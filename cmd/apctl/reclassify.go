package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Reclassify providers from their recent billing history",
	Long: `Recompute the service-type and trust-tier classification for the providers
whose classification is oldest. The server does this on its own schedule;
this command forces a run, after bulk imports or tolerance changes.`,
	RunE: runReclassify,
}

func init() {
	rootCmd.AddCommand(reclassifyCmd)

	reclassifyCmd.Flags().Int("limit", 0, "Max providers to reclassify (default: server batch limit)")
}

func runReclassify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	limit, _ := cmd.Flags().GetInt("limit")

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.classification.ReclassifyProviders(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("processed=%d changed=%d failed=%d\n", result.Processed, result.Changed, result.Failed)
	return nil
}
