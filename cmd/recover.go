package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Finalize interviews interrupted by a crash or restart",
	Long: `Scans the checkpoint directory and session store for interviews that
never produced a report and finalizes them from their saved answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.agent.Recover(cmd.Context())
		for _, id := range ids {
			cmd.Printf("recovered %s\n", id)
		}
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			cmd.Println("nothing to recover")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
