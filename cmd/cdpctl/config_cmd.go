package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
)

func newConfigCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration and platform credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data source:   %s\n", cfg.Data.Source)
			fmt.Fprintf(out, "dry run:       %t\n", cfg.Activation.DryRun)
			fmt.Fprintf(out, "retries:       %d (base %s, max %s)\n",
				cfg.Activation.RetryCount, cfg.Activation.RetryDelay(), cfg.Activation.MaxDelay())
			fmt.Fprintf(out, "timeout:       %s\n", cfg.Activation.Timeout())
			fmt.Fprintf(out, "hash:          %s (country code %s)\n", cfg.Activation.HashAlgorithm, cfg.Activation.CountryCode)
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLATFORM\tSTATUS\tDOCS")
			for _, p := range domain.Platforms() {
				status := "configured"
				if err := cfg.ValidatePlatform(string(p)); err != nil {
					status = "simulated"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.DisplayName(), status, p.DocsURL())
			}
			return w.Flush()
		},
	}
}
