package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process [invoice-id]",
	Short: "Analyze an invoice, or drain the pending backlog",
	Long: `Run the approval analysis for one invoice, or for the whole backlog of
invoices that have never been analyzed.

With an invoice id the command analyzes that invoice; analysis is idempotent,
so re-running on an already-analyzed invoice is a no-op. Without arguments it
behaves like one tick of the server's batch loop.`,
	Example: `  # Analyze one invoice
  apctl process 4f8b1c2e-...

  # Drain up to 100 unanalyzed invoices
  apctl process --limit 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Int("limit", 0, "Max invoices per batch run (default: server batch limit)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 1 {
		result, err := rt.approval.ProcessNewInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("invoice %s: state=%s workflows=%d auto_approved=%d sent_to_review=%d",
			result.InvoiceID, result.InvoiceState, result.WorkflowsCreated,
			result.AutoApproved, result.SentToReview)
		if result.Conflict {
			fmt.Print(" CONFLICT")
		}
		fmt.Println()
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	result, err := rt.approval.ProcessPending(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("processed=%d auto_approved=%d sent_to_review=%d failed=%d\n",
		result.Processed, result.AutoApproved, result.SentToReview, result.Failed)
	return nil
}
