package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnotes/internal/bench"
)

func newBenchCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark extraction against labelled transcripts",
		Long: `Run labelled transcripts through the extraction strategy selected by
--mode and report which cases produced the expected entity types.

Case files are TOML:

  [[case]]
  name = "dentist"
  category = "event"
  transcript = "Dentist appointment tomorrow at 3pm"
  expect = ["event"]

Examples:
  vox bench
  vox bench --mode hybrid --file cases.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases := bench.DefaultCases()
			if file != "" {
				var err error
				if cases, err = bench.LoadFile(file); err != nil {
					return err
				}
			}

			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := bench.NewRunner(a.reg.Extractor(), a.logger).Run(cmd.Context(), cases)
			if err != nil {
				return err
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			return rep.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "TOML case file (default: built-in cases)")
	return cmd
}
