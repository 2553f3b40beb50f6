package test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/companytrigger/internal/company/app"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/db"
	"github.com/gartstein/companytrigger/internal/company/events"
	"github.com/gartstein/companytrigger/internal/company/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	suite.Suite
	dbRepo      *db.Repository
	handler     *controller.CompanyCreateHandler
	logger      *zap.Logger
	testTimeout time.Duration
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.testTimeout = 20 * time.Second

	// Initialize database with retries
	repo, err := initializeDBWithRetry()
	if err != nil {
		s.T().Skip("Database not reachable:", err)
	}
	s.dbRepo = repo
	s.handler = controller.NewCompanyCreateHandler(s.dbRepo, s.logger)
}

func initializeDBWithRetry() (*db.Repository, error) {
	port, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	if err != nil {
		return nil, err
	}
	cfg := &db.Config{
		Driver:   "postgres",
		Host:     envOr("DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("DB_USER", "test"),
		Password: envOr("DB_PASSWORD", "test"),
		DBName:   envOr("DB_NAME", "test"),
		SSLMode:  "disable",
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second

	var repo *db.Repository
	err = backoff.Retry(func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		return err
	}, b)
	return repo, err
}

func kafkaBrokers() []string {
	return []string{envOr("KAFKA_BROKER", "localhost:9092")}
}

func initializeKafkaWithRetry(topic string, logger *zap.Logger) (*events.Producer, error) {
	brokers := kafkaBrokers()
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second

	var producer *events.Producer
	err := backoff.Retry(func() error {
		var err error
		producer, err = events.NewProducer(brokers, logger, topic)
		return err
	}, b)
	if err != nil {
		return nil, fmt.Errorf("Kafka producer initialization failed: %w", err)
	}

	// Verify Kafka readiness using metadata
	err = backoff.Retry(func() error {
		conn, err := kafka.Dial("tcp", brokers[0])
		if err != nil {
			return err
		}
		defer conn.Close()

		partitions, err := conn.ReadPartitions(topic)
		if err != nil || len(partitions) == 0 {
			return fmt.Errorf("topic %s not found", topic)
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("Kafka topic check failed: %w", err)
	}
	return producer, nil
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.dbRepo != nil {
		_ = s.dbRepo.Close()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	// Clean database safely
	if err := s.dbRepo.Exec(ctx, "TRUNCATE TABLE companies, counters"); err != nil {
		s.T().Fatal("Failed to clean database:", err)
	}
}

func (s *IntegrationTestSuite) createCompany(ctx context.Context, name string) events.Event {
	value := map[string]any{models.FieldName: name}
	ev := events.NewCompanyCreated(uuid.NewString(), value, time.Now())
	if err := s.dbRepo.Create(ctx, ev.Ref(), value); err != nil {
		s.T().Fatal("Create failed:", err)
	}
	return ev
}

func (s *IntegrationTestSuite) totalCount(ctx context.Context) int64 {
	counts, err := s.dbRepo.Get(ctx, controller.CountsRef)
	if err != nil {
		s.T().Fatal("Get counts failed:", err)
	}
	if !counts.Exists {
		return 0
	}
	n, _ := counts.Data[models.FieldTotalCount].(int64)
	return n
}

func (s *IntegrationTestSuite) TestCompanyCreateTrigger() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	ev := s.createCompany(ctx, "Testers Inc.")
	if err := s.handler.Handle(ctx, ev.Snapshot(), ev.Context()); err != nil {
		s.T().Fatal("Handle failed:", err)
	}

	company, err := s.dbRepo.Get(ctx, ev.Ref())
	s.Require().NoError(err)
	s.Require().True(company.Exists)
	assert.Equal(s.T(), "Testers Inc.", company.Data[models.FieldName])
	assert.Equal(s.T(), "testers inc.", company.Data[models.FieldNameInLowerCase])
	assert.NotNil(s.T(), company.Data[models.FieldCreatedAt])
	assert.Equal(s.T(), int64(1), s.totalCount(ctx))
}

func (s *IntegrationTestSuite) TestRecordDeletedBeforeTrigger() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	ev := s.createCompany(ctx, "Gone Inc.")
	s.Require().NoError(s.dbRepo.Delete(ctx, ev.Ref()))

	s.Require().NoError(s.handler.Handle(ctx, ev.Snapshot(), ev.Context()))

	company, err := s.dbRepo.Get(ctx, ev.Ref())
	s.Require().NoError(err)
	assert.False(s.T(), company.Exists)
	assert.Equal(s.T(), int64(1), s.totalCount(ctx))
}

func (s *IntegrationTestSuite) TestConcurrentTriggers() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	const n = 20
	evs := make([]events.Event, n)
	for i := range evs {
		evs[i] = s.createCompany(ctx, fmt.Sprintf("Company %d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, ev := range evs {
		wg.Add(1)
		go func(ev events.Event) {
			defer wg.Done()
			errs <- s.handler.Handle(ctx, ev.Snapshot(), ev.Context())
		}(ev)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	assert.Equal(s.T(), int64(n), s.totalCount(ctx))
}

func (s *IntegrationTestSuite) TestKafkaDelivery() {
	topic := "company_created_" + uuid.NewString()
	producer, err := initializeKafkaWithRetry(topic, s.logger)
	if err != nil {
		s.T().Skip("Kafka not reachable:", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	consumer := events.NewConsumer(events.ConsumerConfig{
		Brokers:     kafkaBrokers(),
		GroupID:     "integration-" + uuid.NewString(),
		Topic:       topic,
		MaxAttempts: 3,
	}, s.logger)
	defer consumer.Close()
	consumer.RegisterHandler(app.EventHandler(s.handler))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(runCtx)
	}()

	ev := s.createCompany(ctx, "Streamed Inc.")
	s.Require().NoError(producer.Publish(ctx, ev))

	err = backoff.Retry(func() error {
		if got := s.totalCount(ctx); got != 1 {
			return fmt.Errorf("totalCount = %d", got)
		}
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(500*time.Millisecond), ctx))
	s.Require().NoError(err)

	company, err := s.dbRepo.Get(ctx, ev.Ref())
	s.Require().NoError(err)
	assert.Equal(s.T(), "streamed inc.", company.Data[models.FieldNameInLowerCase])

	stop()
	s.Require().NoError(<-done)
}
