package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clubejota/clube/internal/api"
	"github.com/clubejota/clube/internal/domain"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Override [api].port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Long: `Serve the admin API. Every /api route needs a bearer token signed with
[auth].jwt_secret (see "clube token"); /health and /metrics are open.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Auth.JWTSecret == "" {
		return errors.New("[auth].jwt_secret (or CLUBE_JWT_SECRET) is required to serve the API")
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		a.cfg.API.Port = port
	}

	a.notifier.Subscribe(func(ev domain.PromotionEvent) {
		a.log.Info("member promoted", "account", ev.AccountID, "from", ev.From, "to", ev.To)
	})

	srv := api.NewServer(a.ledger, a.importer, api.NewTokenAuth(a.cfg.Auth.JWTSecret), a.log)
	srv.EnableMetrics()
	srv.SetTracer(a.tracer)
	srv.SetExecutor(a.executor)
	srv.SetHealthCheck(a.db)

	server := &http.Server{
		Addr:              a.cfg.API.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("admin API listening", "addr", server.Addr, "store", a.cfg.DataDir())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case sig := <-stop:
		a.log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
