package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/calcfield/internal/recordfile"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var calcCmd = &cobra.Command{
	Use:   "calc [file.yaml...]",
	Short: "Calculate every record of one or more YAML record files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		files := make([]*recordfile.File, len(args))
		g, _ := errgroup.WithContext(ctx)
		for i, path := range args {
			g.Go(func() error {
				f, err := recordfile.LoadAndValidate(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				files[i] = f
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		out := cmd.OutOrStdout()
		for i, f := range files {
			requests, err := f.Requests()
			if err != nil {
				return fmt.Errorf("%s: %w", args[i], err)
			}
			outcomes, err := engine.CalculateBatch(ctx, requests)
			if err != nil {
				return err
			}
			if len(files) > 1 {
				fmt.Fprintf(out, "# %s\n", args[i])
			}
			if err := recordfile.NewReport(outcomes).Encode(out); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(calcCmd)
}
