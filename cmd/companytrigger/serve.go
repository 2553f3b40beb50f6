package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/events"
	"github.com/gartstein/companytrigger/internal/company/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume company creation events from Kafka",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer syncLogger(logger)

		if len(cfg.KafkaBrokers) == 0 {
			return errors.New("serve requires KAFKA_BROKERS")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("failed to close store", zap.Error(err))
			}
		}()

		handler := controller.NewCompanyCreateHandler(st, logger)

		consumer := events.NewConsumer(events.ConsumerConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MaxAttempts: cfg.MaxDeliveryAttempts,
		}, logger)
		defer consumer.Close()
		consumer.RegisterHandler(app.EventHandler(handler))

		server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger)
		serverErr := make(chan error, 1)
		go func() {
			serverErr <- server.Start()
		}()

		consumerErr := make(chan error, 1)
		go func() {
			consumerErr <- consumer.Run(ctx)
		}()
		server.SetServing(true)
		logger.Info("Consuming company creation events",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.Topic),
			zap.String("group_id", cfg.GroupID),
			zap.String("store", cfg.StoreBackend),
		)

		select {
		case <-ctx.Done():
			err = <-consumerErr
		case err = <-consumerErr:
		case err = <-serverErr:
			stop()
			if cerr := <-consumerErr; err == nil {
				err = cerr
			}
		}

		server.Stop()
		logger.Info("Servers stopped properly")
		return err
	},
}
