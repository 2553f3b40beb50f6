package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/events"
	"github.com/gartstein/companytrigger/internal/company/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	createName   string
	createID     string
	createInline bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a company record and emit its creation event",
	Long: `create writes a new company record to the configured store and publishes
its creation event to Kafka. With --inline the trigger runs in process
instead, which needs no broker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer syncLogger(logger)

		if !createInline && len(cfg.KafkaBrokers) == 0 {
			return errors.New("create requires KAFKA_BROKERS unless --inline is set")
		}
		id := createID
		if id == "" {
			id = uuid.NewString()
		}

		ctx := cmd.Context()
		st, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		value := map[string]any{models.FieldName: createName}
		ev := events.NewCompanyCreated(id, value, time.Now())
		if err := st.Create(ctx, ev.Ref(), value); err != nil {
			return fmt.Errorf("failed to create company %s: %w", id, err)
		}
		logger.Info("Company created", zap.String("company_id", id), zap.String("name", createName))

		if createInline {
			return app.EventHandler(controller.NewCompanyCreateHandler(st, logger))(ctx, ev)
		}

		producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
		if err != nil {
			return fmt.Errorf("failed to initialize Kafka producer: %w", err)
		}
		defer producer.Close()
		return producer.Publish(ctx, ev)
	},
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "company name")
	createCmd.Flags().StringVar(&createID, "id", "", "company id (default random UUID)")
	createCmd.Flags().BoolVar(&createInline, "inline", false, "run the trigger in process instead of publishing the event")
	_ = createCmd.MarkFlagRequired("name")
}
