package main

import (
	"fmt"
	"time"

	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/events"
	"github.com/gartstein/companytrigger/internal/company/models"
	"github.com/gartstein/companytrigger/internal/company/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var invokeTimestamp string

var invokeCmd = &cobra.Command{
	Use:   "invoke <company-id>",
	Short: "Run the creation trigger once for an existing company record",
	Long: `invoke reads the company record from the configured store and runs the
creation trigger for it, as if its creation event had just been delivered.
Each invocation increments the companies counter.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer syncLogger(logger)

		ts := invokeTimestamp
		if ts == "" {
			ts = time.Now().UTC().Format(events.TimestampLayout)
		}

		ctx := cmd.Context()
		st, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.Get(ctx, store.Ref{Collection: models.CompaniesCollection, ID: args[0]})
		if err != nil {
			return fmt.Errorf("failed to read company %s: %w", args[0], err)
		}
		if !snap.Exists {
			return fmt.Errorf("company %s does not exist", args[0])
		}

		evCtx := models.EventContext{EventID: uuid.NewString(), Timestamp: ts}
		if err := controller.NewCompanyCreateHandler(st, logger).Handle(ctx, snap, evCtx); err != nil {
			return err
		}
		logger.Info("Company creation trigger completed",
			zap.String("company_id", args[0]),
			zap.String("event_id", evCtx.EventID),
		)
		return nil
	},
}

func init() {
	invokeCmd.Flags().StringVar(&invokeTimestamp, "timestamp", "", "event timestamp in RFC 3339 form (default now)")
}
