package main

import (
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/viacare/risk-assessor/internal/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the assessment API until SIGINT or SIGTERM.

Routes:
  GET  /health
  GET  /api/v1/features
  POST /api/v1/assessments
  GET  /metrics (when metrics.enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(root.configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := app.config.GetConfig()
			app.logger.WithFields(logrus.Fields{
				"host":           cfg.Server.Host,
				"port":           cfg.Server.Port,
				"prediction_url": cfg.Prediction.BaseURL,
				"environment":    cfg.Environment,
			}).Info("Starting risk assessor")

			server := api.NewServer(app.config, app.assessor, app.metrics, app.logger)
			if err := server.Start(ctx); err != nil {
				return err
			}

			app.logger.Info("Server stopped")
			return nil
		},
	}
}
