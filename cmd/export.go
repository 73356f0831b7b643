package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fmuoria/ai-interviewer/internal/export"
	"github.com/fmuoria/ai-interviewer/internal/proctoring"
)

var exportCmd = &cobra.Command{
	Use:   "export <interview-id> <output.xlsx>",
	Short: "Export a finished interview report to Excel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, output := args[0], args[1]

		reports, err := export.NewReportWriter(cfg.ReportsDir)
		if err != nil {
			return err
		}
		report, err := reports.Read(id)
		if err != nil {
			return err
		}

		events, err := proctoring.NewEventLog(cfg.SnapshotDir).Events(id)
		if err != nil {
			return err
		}

		if err := export.ExportToExcel(report, events, output); err != nil {
			return err
		}
		cmd.Printf("exported %s (%d answers, %d proctoring events)\n", id, len(report.Entries), len(events))
		return nil
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List interviews with a finished report",
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, err := export.NewReportWriter(cfg.ReportsDir)
		if err != nil {
			return err
		}
		ids, err := reports.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			report, err := reports.Read(id)
			if err != nil {
				cmd.Printf("%s\t(unreadable: %v)\n", id, err)
				continue
			}
			cmd.Printf("%s\t%.2f\t%s\n", id, report.AverageScore, report.Decision)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportsCmd)
}
