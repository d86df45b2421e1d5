// Command quietq runs the journaling prompt service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"quietq/internal/app"
	"quietq/internal/config"
	"quietq/internal/digest"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "quietq",
		Short:         "Gentle journaling prompts that respect your quiet hours",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quietq %s\n", version)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkConfig(cmd.OutOrStdout(), cfgPath)
		},
	})
	return cmd
}

func checkConfig(w io.Writer, path string) error {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return err
	}
	if cfg.Digest.Enabled {
		if err := digest.ValidateSpec(cfg.Digest.Spec); err != nil {
			return fmt.Errorf("digest.spec: %w", err)
		}
	}
	loc, _ := cfg.Location()
	fmt.Fprintf(w, "config ok: transport=%s storage=%s timezone=%s\n", cfg.Kind(), cfg.StoragePath(), loc)
	return nil
}

func run(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath, app.Options{})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	// No-op outside systemd (NOTIFY_SOCKET unset).
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
