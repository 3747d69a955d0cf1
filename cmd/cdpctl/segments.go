package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/config"
)

func newSegmentsCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "Run every catalog segment and print its size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tMEMBERS\tSHARE\tAVG AGE\tDESCRIPTION")
			for _, seg := range a.Catalog.List() {
				res, err := a.Engine.Run(cmd.Context(), seg)
				if err != nil {
					return fmt.Errorf("segment %s: %w", seg.Key(), err)
				}
				fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1f\t%s\n",
					seg.Key(), res.Stats.Count, res.Stats.Percentage, res.Stats.AvgAge, seg.Definition().Description)
			}
			return w.Flush()
		},
	}
}
