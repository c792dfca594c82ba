package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List workflows waiting for a responsible's review",
	Example: `  apctl pending --responsible maria.garcia
  apctl pending --responsible ap-review-queue --page 2 --size 50`,
	RunE: runPending,
}

func init() {
	rootCmd.AddCommand(pendingCmd)

	pendingCmd.Flags().String("responsible", "", "Responsible user id (required)")
	pendingCmd.Flags().Int("page", 1, "Page number")
	pendingCmd.Flags().Int("size", 20, "Page size")
	pendingCmd.MarkFlagRequired("responsible")
}

func runPending(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	responsible, _ := cmd.Flags().GetString("responsible")
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	workflows, err := rt.approval.GetPendingReviews(ctx, responsible, page, size)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		fmt.Println("no pending reviews")
		return nil
	}

	for _, wf := range workflows {
		confidence := "-"
		if wf.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *wf.Confidence)
		}
		fmt.Printf("%s  invoice=%s  confidence=%s  since=%s\n",
			wf.ID, wf.InvoiceID, confidence, wf.UpdatedAt.Format("2006-01-02 15:04"))
		if len(wf.Reasons) > 0 {
			fmt.Printf("    reasons: %s\n", strings.Join(wf.Reasons, "; "))
		}
	}
	return nil
}
