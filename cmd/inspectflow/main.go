// Package main provides the inspectflow binary: an operator CLI over the
// inspection-report approval workflow.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/pkg/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "inspectflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps workflow error codes to distinct process exit statuses
func exitCode(err error) int {
	switch inspectflow.GetErrorCode(err) {
	case inspectflow.ErrCodeNone:
		return 1
	case inspectflow.ErrCodeNotFound:
		return 3
	case inspectflow.ErrCodePermissionDenied:
		return 4
	case inspectflow.ErrCodeConcurrentModification:
		return 5
	default:
		return 6
	}
}

type cli struct {
	newApp     appFactory
	configPath string
	logLevel   string
}

func newRootCmd(newApp appFactory) *cobra.Command {
	c := &cli{newApp: newApp}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Inspection report approval workflow",
		Long: `inspectflow drives inspection reports through the approval chain:
Supervisor, Operations Manager, Business Development and Procurement in
parallel, then General Manager.

Commands act on the store named in the configuration (inspectflow.yaml,
~/.config/inspectflow/config.yaml or --config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(
		graphCmd(),
		c.createCmd(),
		c.approveCmd(),
		c.rejectCmd(),
		c.resubmitCmd(),
		c.showCmd(),
		c.pendingCmd(),
		c.historyCmd(),
		c.simulateCmd(),
	)
	return cmd
}

// withApp loads configuration, builds the engine and runs fn against it
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	bootLevel := c.logLevel
	if bootLevel == "" {
		bootLevel = "warn"
	}
	cfg, err := config.NewLoader(newLogger(bootLevel)).Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	logger := newLogger(cfg.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := c.newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Debug("Engine ready",
		slog.String("store", cfg.Store.Backend),
		slog.String("blobs", cfg.Blobs.Backend),
		slog.Bool("notify", cfg.NATS.URL != ""))
	return fn(ctx, a)
}

// withStoredApp is withApp for commands that act on submissions from earlier
// invocations, which an in-process store cannot serve.
func (c *cli) withStoredApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return c.withApp(cmd, func(ctx context.Context, a *app) error {
		if !a.persistent {
			return errEphemeralStore
		}
		return fn(ctx, a)
	})
}
