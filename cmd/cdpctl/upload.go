package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
)

var errUploadFailed = errors.New("upload failed")

func newUploadCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "upload PLATFORM SEGMENT",
		Short: "Upload a segment's hashed identifiers as a platform audience",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePlatform(args[0])
			if err != nil {
				return err
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

			run, err := a.Activator.Activate(cmd.Context(), activation.Request{
				SegmentKey: args[1],
				Platforms:  []domain.Platform{p},
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "segment %s: %d members, %d reachable\n", run.Segment, run.Matched, run.Hashed)
			failed := false
			for _, r := range run.Results {
				fmt.Fprintln(out, r.String())
				if r.AudienceID != "" {
					fmt.Fprintf(out, "  audience %s (%s)\n", r.AudienceID, r.AudienceName)
				}
				failed = failed || !r.Success
			}
			if failed {
				return errUploadFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Hash and count without calling the platform")
	return cmd
}
