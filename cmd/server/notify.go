package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/farmer-objection-service/internal/queue"
)

func notifyWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-worker",
		Short: "Consume domain events and append them to the notification log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if cfg.RabbitURL == "" {
				return errors.New("RABBITMQ_URL is required for notify-worker")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("notification worker started", zap.String("dir", cfg.NotifyLogDir))
			return queue.NewConsumer(cfg.RabbitURL, cfg.NotifyLogDir, log).Run(ctx)
		},
	}
}
