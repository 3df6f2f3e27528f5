package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/presentation/handlers"
)

func newServeCommand(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve quotes, prices and execution records over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Server.Port
			}

			var fetcher entities.MetadataFetcher = a.erc20
			router := handlers.NewRouter(handlers.Routes{
				Health:     handlers.NewHealthHandler(version, a.cfg.Chain.ChainID, len(a.venues)),
				Quote:      handlers.NewQuoteHandler(a.routeBuilder(), a.tokens, fetcher),
				Prices:     handlers.NewPriceHandler(a.markets(), a.evaluator(a.cfg.Trading.MinProfitBps)),
				Executions: handlers.NewExecutionHandler(a.records),
				Metrics:    promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			}, a.logger)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 35 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("starting HTTP server", zap.String("version", version), zap.Int("port", port))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port (default from config)")
	return cmd
}
