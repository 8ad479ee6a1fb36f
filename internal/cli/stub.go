package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reflink/internal/stub"
)

// StubOptions holds flags for the stub command.
type StubOptions struct {
	*RootOptions
	Addr string
	Seed string

	// Ready receives the listen address once the server accepts
	// connections. Used by tests.
	Ready chan<- string
}

// NewStubCommand creates the stub command.
func NewStubCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StubOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve fake affiliate and validator backends",
		Long: `Serve the affiliate directory, event, webhook and receipt validator
endpoints from a seed file, for local development. Prometheus metrics
are served at /metrics.

Point a client at it with endpoints.affiliate and endpoints.validator
(or REFLINK_AFFILIATE_URL and REFLINK_VALIDATOR_URL).

Example:
  reflink stub --addr 127.0.0.1:8089 --seed seed.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStub(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8089", "listen address")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "seed YAML file")

	return cmd
}

func runStub(opts *StubOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr(), false).With("component", "stub")
	if opts.Verbose {
		slog.SetDefault(logger)
	}

	var seed stub.Seed
	if opts.Seed != "" {
		s, err := stub.LoadSeed(opts.Seed)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load seed", err)
		}
		seed = s
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	backend := stub.New(seed, stub.WithLogger(logger), stub.WithMetrics())
	srv := &http.Server{
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "Stub backend listening on http://%s\n", addr)
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "stub server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "stub shutdown", err)
	}
	return nil
}
