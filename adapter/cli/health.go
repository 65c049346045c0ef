package cli

import (
	"fmt"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/queries"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show rebalancing engine health",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("health requires a configured database")
		}

		view, err := app.EngineHealthHandler.Handle(cmd.Context(), queries.EngineHealthQuery{})
		if err != nil {
			return err
		}

		fmt.Printf("Engine status: %s\n", view.Status)
		fmt.Printf("  generated (24h):  %d\n", view.Generated24h)
		fmt.Printf("  applied (24h):    %d\n", view.Applied24h)
		fmt.Printf("  rejected (24h):   %d\n", view.Rejected24h)
		fmt.Printf("  undone (24h):     %d\n", view.Undone24h)
		fmt.Printf("  acceptance rate:  %.0f%%\n", view.AcceptanceRate*100)
		fmt.Printf("  undo rate:        %.0f%%\n", view.UndoRate*100)
		fmt.Printf("  last hour:        %d generated\n", view.GeneratedLastHour)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
