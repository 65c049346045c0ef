package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/commands"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/queries"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rebalanceCmd = &cobra.Command{
	Use:     "rebalance",
	Short:   "Propose, apply and undo schedule changes",
	Aliases: []string{"rb"},
}

var (
	proposeTrigger  string
	proposeMode     string
	proposeNewItems []string
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Scan the calendar and build a change proposal",
	Long: `Scans the upcoming calendar window for conflicts, overloaded days,
cramming patterns and energy mismatches, and builds a prioritized
proposal of moves. Nothing changes until the proposal is applied.

Examples:
  studyflow rebalance propose
  studyflow rebalance propose --trigger quick-add --new-item 4f8b...
  studyflow rebalance propose --mode require_all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("rebalance requires a configured database")
		}

		newItems := make([]uuid.UUID, 0, len(proposeNewItems))
		for _, raw := range proposeNewItems {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid work item id %q: %w", raw, err)
			}
			newItems = append(newItems, id)
		}

		result, err := app.GenerateProposalHandler.Handle(cmd.Context(), commands.GenerateProposalCommand{
			UserID:         app.CurrentUserID,
			Trigger:        domain.Trigger(proposeTrigger),
			ApplyMode:      domain.ApplyMode(proposeMode),
			NewWorkItemIDs: newItems,
		})
		if err != nil {
			return err
		}

		if result.Rejected {
			fmt.Printf("Proposal %s rejected: daily churn budget exhausted\n", short(result.ProposalID))
			return nil
		}
		fmt.Printf("Proposal %s: %d moves, %d min churn", short(result.ProposalID), result.MovesCount, result.ChurnCostTotal)
		if result.TrimmedMoves > 0 {
			fmt.Printf(" (%d moves trimmed by the churn cap)", result.TrimmedMoves)
		}
		fmt.Println()
		fmt.Printf("Review with: studyflow rebalance show %s\n", result.ProposalID)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <proposal-id>",
	Short: "Show a proposal and its moves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("rebalance requires a configured database")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid proposal id: %w", err)
		}

		view, err := app.GetProposalHandler.Handle(cmd.Context(), queries.GetProposalQuery{ProposalID: id})
		if err != nil {
			return err
		}
		printProposal(view)
		return nil
	},
}

var applyKey string

var applyCmd = &cobra.Command{
	Use:   "apply <proposal-id>",
	Short: "Apply a proposal to the calendar",
	Long: `Applies the proposal's moves in one transaction. Pass the same
--key to retry safely; a retry returns the original outcome without
touching the calendar again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("rebalance requires a configured database")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid proposal id: %w", err)
		}
		key := applyKey
		if key == "" {
			key = uuid.New().String()
		}

		result, err := app.ApplyProposalHandler.Handle(cmd.Context(), commands.ApplyProposalCommand{
			UserID:         app.CurrentUserID,
			ProposalID:     id,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}

		if result.Replayed {
			fmt.Println("Already applied (idempotent replay):")
		}
		fmt.Printf("Proposal %s %s: %d moves applied, %d skipped\n",
			short(result.ProposalID), result.Status, result.AppliedMoves, result.SkippedMoves)
		for _, c := range result.Conflicts {
			fmt.Printf("  conflict: block %s (%s)\n", short(c.BlockID), c.Reason)
		}
		if result.AppliedMoves > 0 {
			fmt.Printf("Undo within %s with: studyflow rebalance undo %s\n",
				commands.DefaultUndoWindow, result.ProposalID)
		}
		return nil
	},
}

var undoKey string

var undoCmd = &cobra.Command{
	Use:   "undo <proposal-id>",
	Short: "Restore the calendar to its pre-apply state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("rebalance requires a configured database")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid proposal id: %w", err)
		}
		key := undoKey
		if key == "" {
			key = uuid.New().String()
		}

		result, err := app.UndoProposalHandler.Handle(cmd.Context(), commands.UndoProposalCommand{
			UserID:         app.CurrentUserID,
			ProposalID:     id,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Proposal %s undone: %d blocks restored\n", short(result.ProposalID), result.RestoredBlocks)
		for _, u := range result.Unrestored {
			fmt.Printf("  not restored: block %s (%s)\n", short(u.BlockID), u.Reason)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <proposal-id>",
	Short: "Discard a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("rebalance requires a configured database")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid proposal id: %w", err)
		}
		if err := app.CancelProposalHandler.Handle(cmd.Context(), commands.CancelProposalCommand{
			UserID:     app.CurrentUserID,
			ProposalID: id,
		}); err != nil {
			return err
		}
		fmt.Printf("Proposal %s cancelled\n", short(id))
		return nil
	},
}

func printProposal(view *queries.ProposalView) {
	fmt.Printf("\nProposal %s\n", view.ID)
	fmt.Printf("  status:  %s\n", view.Status)
	fmt.Printf("  trigger: %s", view.Trigger)
	if view.CauseContext != "" {
		fmt.Printf(" (%s)", view.CauseContext)
	}
	fmt.Println()
	fmt.Printf("  mode:    %s\n", view.ApplyMode)
	fmt.Printf("  churn:   %d min across %d moves\n", view.ChurnCostTotal, len(view.Moves))
	if view.AppliedAt != nil {
		fmt.Printf("  applied: %s\n", view.AppliedAt.Format(time.RFC3339))
	}
	if view.UndoneAt != nil {
		fmt.Printf("  undone:  %s\n", view.UndoneAt.Format(time.RFC3339))
	}

	fmt.Println()
	for _, m := range view.Moves {
		window := ""
		if m.TargetStart != nil && m.TargetEnd != nil {
			window = fmt.Sprintf("%s - %s",
				m.TargetStart.Format("Mon 15:04"), m.TargetEnd.Format("15:04"))
		}
		marker := " "
		if m.Unverified {
			marker = "?"
		}
		fmt.Printf("  %s [%s] %-8s %-30s %-18s %s\n",
			marker, short(m.ID), m.Type, truncate(m.Title, 30), window, joinReasons(m.ReasonCodes))
	}
	fmt.Println()
}

func joinReasons(codes []domain.ReasonCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func short(id uuid.UUID) string {
	return id.String()[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	proposeCmd.Flags().StringVar(&proposeTrigger, "trigger", string(domain.TriggerManual), "trigger kind (manual, quick-add, energy-change, schedule-drift)")
	proposeCmd.Flags().StringVar(&proposeMode, "mode", string(domain.ApplyModeBestEffort), "apply mode (best_effort, require_all)")
	proposeCmd.Flags().StringSliceVar(&proposeNewItems, "new-item", nil, "work item IDs to plan onto the calendar")
	applyCmd.Flags().StringVar(&applyKey, "key", "", "idempotency key (generated when omitted)")
	undoCmd.Flags().StringVar(&undoKey, "key", "", "idempotency key (generated when omitted)")

	rebalanceCmd.AddCommand(proposeCmd)
	rebalanceCmd.AddCommand(showCmd)
	rebalanceCmd.AddCommand(applyCmd)
	rebalanceCmd.AddCommand(undoCmd)
	rebalanceCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(rebalanceCmd)
}
