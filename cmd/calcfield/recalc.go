package main

import (
	"github.com/ZanzyTHEbar/calcfield"
	"github.com/ZanzyTHEbar/calcfield/internal/recordfile"
	"github.com/ZanzyTHEbar/calcfield/internal/store"
	"github.com/spf13/cobra"
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [store.db] [record-id] [field...]",
	Short: "Recalculate a stored record and persist the outcome",
	Long: "Recalculate the given calculated fields of a stored record, or every enabled\n" +
		"calculated field when none are named, and write the results back to the store.",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recordID := args[1]

		var requested []calcfield.FieldID
		for _, id := range args[2:] {
			requested = append(requested, calcfield.FieldID(id))
		}

		logger, err := newLogger("store")
		if err != nil {
			return err
		}
		s, err := store.Open(args[0], store.WithLogger(logger))
		if err != nil {
			return err
		}
		defer s.Close()

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		outcome, err := s.Recalculate(ctx, engine, recordID, requested)
		if err != nil {
			return err
		}
		report := recordfile.NewReport([]calcfield.RecordOutcome{{RecordID: recordID, Outcome: outcome}})
		return report.Encode(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(recalcCmd)
}
