package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <invoice-id>",
	Short: "Show an invoice's decision timeline",
	Long: `Print the state transitions of every approval workflow opened for an
invoice, oldest first. With --audit the compliance audit log is printed
instead, including the metadata recorded with each action.`,
	Example: `  apctl history 4f8b1c2e-...
  apctl history 4f8b1c2e-... --audit`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Bool("audit", false, "Print the audit log instead of the transition timeline")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	invoiceID := args[0]

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	audit, _ := cmd.Flags().GetBool("audit")
	if audit {
		entries, err := rt.approval.GetApprovalHistory(ctx, invoiceID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no audit entries")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-18s  by=%s", e.PerformedAt.Format("2006-01-02 15:04:05"), e.Action, e.PerformedBy)
			if e.StateBefore != nil && e.StateAfter != nil {
				fmt.Printf("  %s -> %s", *e.StateBefore, *e.StateAfter)
			}
			fmt.Println()
			if len(e.Metadata) > 0 {
				meta, _ := json.Marshal(e.Metadata)
				fmt.Printf("    %s\n", meta)
			}
		}
		return nil
	}

	events, err := rt.approval.GetTimeline(ctx, invoiceID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no workflow events")
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %-12s  %s -> %s  actor=%s  workflow=%s\n",
			e.OccurredAt.Format("2006-01-02 15:04:05"), e.Kind,
			e.FromState, e.ToState, e.Actor, e.WorkflowID)
	}
	return nil
}
