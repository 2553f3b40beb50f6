// Lambda entry point of the company creation trigger. Each invocation carries
// one creation event.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/config"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/events"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := app.OpenStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	lambda.Start(newHandler(controller.NewCompanyCreateHandler(st, logger), logger))
}

func newHandler(h *controller.CompanyCreateHandler, logger *zap.Logger) func(context.Context, events.Event) error {
	handle := app.EventHandler(h)
	return func(ctx context.Context, ev events.Event) error {
		evLog := logger.With(zap.String("event_id", ev.ID))
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			evLog = evLog.With(zap.String("request_id", lc.AwsRequestID))
		}
		if !ev.IsCompanyCreation() {
			evLog.Warn("Ignoring event", zap.String("type", string(ev.Type)), zap.String("collection", ev.Resource.Collection))
			return nil
		}
		// Returning the error lets the Lambda runtime apply its own retry policy.
		if err := handle(ctx, ev); err != nil {
			evLog.Error("Company creation trigger failed", zap.Error(err))
			return err
		}
		return nil
	}
}
