package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/export"
)

func newExportCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var platformNames []string
	cmd := &cobra.Command{
		Use:   "export [SEGMENT]",
		Short: "Write platform CSV files for one segment, or for all with a report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms := make([]domain.Platform, 0, len(platformNames))
			for _, name := range platformNames {
				p, err := domain.ParsePlatform(name)
				if err != nil {
					return err
				}
				platforms = append(platforms, p)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				exp, err := a.Exporter.ExportSegment(cmd.Context(), args[0], platforms)
				if err != nil {
					return err
				}
				printExport(cmd, exp)
				return nil
			}

			exports, err := a.Exporter.ExportAll(cmd.Context(), platforms)
			if err != nil {
				return err
			}
			for _, exp := range exports {
				printExport(cmd, exp)
			}
			_, loc, err := a.Exporter.WriteReport(cmd.Context(), exports)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "report: %s\n", loc)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&platformNames, "platform", "p", nil, "Platforms to export (default all)")
	return cmd
}

func printExport(cmd *cobra.Command, exp *export.SegmentExport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d members\n", exp.Segment.Key, exp.Count)
	for _, p := range domain.Platforms() {
		if loc, ok := exp.Files[p]; ok {
			fmt.Fprintf(out, "  %-7s %s\n", p, loc)
		}
	}
}
