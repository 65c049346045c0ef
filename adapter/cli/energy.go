package cli

import (
	"fmt"
	"strconv"

	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/commands"
	"github.com/spf13/cobra"
)

var energyCmd = &cobra.Command{
	Use:   "energy <level>",
	Short: "Report your current energy level (1-10)",
	Long: `Records a self-reported energy level. A large shift triggers an
immediate short-window rebalance so the next day or two match how you
actually feel.

Examples:
  studyflow energy 3    # exhausted, move deep work away
  studyflow energy 8    # energized`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("energy reporting requires a configured database")
		}
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("energy level must be a number: %w", err)
		}

		result, err := app.ReportEnergyHandler.Handle(cmd.Context(), commands.ReportEnergyCommand{
			UserID: app.CurrentUserID,
			Level:  profile.EnergyLevel(level),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Energy recorded: %d (was %d)\n", result.Level, result.PriorLevel)
		if result.Proposal != nil {
			fmt.Printf("Rebalance proposed: %d moves, review with: studyflow rebalance show %s\n",
				result.Proposal.MovesCount, result.Proposal.ProposalID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(energyCmd)
}
