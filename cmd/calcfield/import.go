package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/calcfield/internal/recordfile"
	"github.com/ZanzyTHEbar/calcfield/internal/store"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file.yaml] [store.db]",
	Short: "Load the fields and records of a YAML record file into a SQLite store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		file, err := recordfile.LoadAndValidate(args[0])
		if err != nil {
			return err
		}
		defs, err := file.Definitions()
		if err != nil {
			return err
		}

		logger, err := newLogger("store")
		if err != nil {
			return err
		}
		s, err := store.Open(args[1], store.WithLogger(logger))
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SaveDefinitions(ctx, defs); err != nil {
			return err
		}
		for _, rec := range file.Records {
			ectx, err := rec.Context(defs)
			if err != nil {
				return err
			}
			if err := s.SaveRecord(ctx, rec.ID, ectx); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d fields and %d records into %s\n", len(defs), len(file.Records), args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
