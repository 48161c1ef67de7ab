package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/api"
	"github.com/sells-group/leadgate/internal/monitoring"
	anthropicpkg "github.com/sells-group/leadgate/pkg/anthropic"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation and credit API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		deps := api.Deps{
			Store:     env.Store,
			Pipeline:  env.Pipeline,
			Auditor:   env.Auditor,
			Ledger:    env.Pipeline.Ledger(),
			Blacklist: env.Blacklist,
		}
		if cfg.Anthropic.Key != "" {
			deps.Prospector = newProspector(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
			zap.L().Info("prospecting enabled", zap.String("model", cfg.Anthropic.Model))
		} else {
			zap.L().Debug("LEADGATE_ANTHROPIC_KEY not set, prospecting disabled")
		}
		if cfg.Server.AdminToken == "" {
			zap.L().Warn("LEADGATE_SERVER_ADMIN_TOKEN not set, admin endpoints disabled")
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.New(deps, api.Config{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				AdminToken:     cfg.Server.AdminToken,
			}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
