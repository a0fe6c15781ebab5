package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/actionlog"
	"github.com/lishuo8109/weibopilot/internal/browser"
	"github.com/lishuo8109/weibopilot/internal/config"
	"github.com/lishuo8109/weibopilot/internal/dispatch"
	"github.com/lishuo8109/weibopilot/internal/observability"
	"github.com/lishuo8109/weibopilot/internal/pool"
	"github.com/lishuo8109/weibopilot/internal/server"
	"github.com/lishuo8109/weibopilot/internal/session"
)

const shutdownGrace = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Warm up the session pool and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	creds, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded account credentials.", zap.Int("accounts", len(creds)))

	var recorder schemas.Recorder = schemas.NopRecorder{}
	if cfg.ActionLog.Enabled {
		dbpool, err := pgxpool.New(ctx, cfg.ActionLog.DSN)
		if err != nil {
			return fmt.Errorf("failed to open action log database: %w", err)
		}
		defer dbpool.Close()

		store := actionlog.New(dbpool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare action log schema: %w", err)
		}
		recorder = store
	}

	// Browser handles outlive the warm-up errgroup, so they are bound to the
	// serve context rather than the context Start hands the factory.
	factory := func(_ context.Context, cred schemas.AccountCredential) (pool.AccountSession, error) {
		handle, err := browser.NewHandle(ctx, cfg.Browser, cred.Proxy, logger)
		if err != nil {
			return nil, err
		}
		return session.New(cred, handle, cfg.Session, logger), nil
	}

	p := pool.New(creds, factory, cfg.Pool.MaxConcurrent, logger)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("pool warm-up failed: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		p.Close(closeCtx)
	}()

	d := dispatch.New(p, recorder, logger)
	srv := server.New(cfg.Server, p, d, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received.")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
