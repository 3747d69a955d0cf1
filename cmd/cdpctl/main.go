package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignite/cdp-activation/internal/app"
	"github.com/ignite/cdp-activation/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "cdpctl",
		Short:         "Run segments, export audience files and upload audiences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to the YAML config file")

	loadConfig := func() (*config.Config, error) {
		return config.LoadFromEnv(configPath)
	}

	rootCmd.AddCommand(
		newSegmentsCmd(loadConfig),
		newExportCmd(loadConfig),
		newUploadCmd(loadConfig),
		newStatusCmd(loadConfig),
		newConfigCmd(loadConfig),
	)
	return rootCmd
}

// openApp wires the services and loads the record snapshot.
func openApp(ctx context.Context, cfg *config.Config, withData bool) (*app.App, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if withData {
		if err := a.Load(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("loading records: %w", err)
		}
	}
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
