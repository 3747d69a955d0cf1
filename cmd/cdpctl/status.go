package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
)

func newStatusCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status PLATFORM AUDIENCE_ID",
		Short: "Show a remote audience's size and state",
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
			a, err := openApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Activator.Status(cmd.Context(), p, args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s audience %s\n", p.DisplayName(), st.ID)
			if st.Name != "" {
				fmt.Fprintf(out, "  name:   %s\n", st.Name)
			}
			fmt.Fprintf(out, "  status: %s\n", st.Status)
			fmt.Fprintf(out, "  size:   %d\n", st.Size)
			if st.Error != "" {
				fmt.Fprintf(out, "  error:  %s\n", st.Error)
			}
			if st.Status == activation.StatusUnknown && st.Error != "" {
				return fmt.Errorf("status lookup failed: %s", st.Error)
			}
			return nil
		},
	}
}
