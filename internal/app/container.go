package app

import (
	"context"
	"fmt"
	"os"

	"orderservice/internal/api"
	"orderservice/internal/config"
	"orderservice/internal/order"
	"orderservice/internal/platform/kafka"
	"orderservice/internal/platform/observability"
	"orderservice/internal/platform/postgres"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config            *config.Config
	logger            observability.Logger
	tracer            observability.Tracer
	stockConsumer     kafka.Consumer
	orderProducer     kafka.Producer
	deadLetter        kafka.Producer
	pool              *pgxpool.Pool
	consumerService   order.ConsumerService
	apiServer         *api.Server
	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := &Container{
		config: cfg,
	}

	if err := container.setupLogger(); err != nil {
		return nil, err
	}

	if err := container.setupObservability(ctx); err != nil {
		return nil, err
	}

	store, err := container.setupStore(ctx)
	if err != nil {
		return nil, err
	}

	container.setupDomain(store)

	return container, nil
}

func (c *Container) setupLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging and tracing. Without an
// OTel endpoint the service keeps the console logger and a no-op tracer.
func (c *Container) setupObservability(ctx context.Context) error {
	var tp trace.TracerProvider

	if c.config.OtelEndpoint != "" {
		otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
		}
		c.otelLogShutdown = otelLogShutdown

		sdkTP, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
		}
		c.otelTraceShutdown = otelTraceShutdown
		if sdkTP != nil {
			tp = sdkTP
		}

		c.reinitializeLoggerWithOTel()
	}

	c.tracer = otel.Tracer(config.ServiceName)

	return c.setupKafkaWithTracer(tp)
}

// reinitializeLoggerWithOTel creates a new logger with OpenTelemetry integration
func (c *Container) reinitializeLoggerWithOTel() {
	logProvider := global.GetLoggerProvider()
	instrumentationScopeName := "order-service.manual"
	otelZapCore := otelzap.NewCore(instrumentationScopeName,
		otelzap.WithLoggerProvider(logProvider),
	)

	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	finalCore := zapcore.NewTee(otelZapCore, consoleCore)
	logger := zap.New(finalCore,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)

	c.logger = logger
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge")
}

// setupKafkaWithTracer initializes the stock response reader and the two
// writers, wrapped with OpenTelemetry instrumentation.
func (c *Container) setupKafkaWithTracer(tp trace.TracerProvider) error {
	readerConfig := kafkago.ReaderConfig{
		Brokers: []string{c.config.KafkaBroker},
		Topic:   config.StockResponseTopic,
		GroupID: config.GroupID,
	}

	baseReader := kafkago.NewReader(readerConfig)
	reader, err := otelkafka.NewReader(baseReader)
	if err != nil {
		return err
	}
	c.stockConsumer = reader

	orderProducer, err := c.newWriter(tp, config.OrderCreatedTopic)
	if err != nil {
		return err
	}
	c.orderProducer = orderProducer

	deadLetter, err := c.newWriter(tp, config.DeadLetterTopic)
	if err != nil {
		return err
	}
	c.deadLetter = deadLetter

	return nil
}

func (c *Container) newWriter(tp trace.TracerProvider, topic string) (kafka.Producer, error) {
	baseWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.KafkaBroker),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}

	attrs := otelkafka.WithAttributes(
		[]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", config.ServiceName),
		},
	)
	if tp != nil {
		return otelkafka.NewWriter(baseWriter,
			otelkafka.WithTracerProvider(tp),
			otelkafka.WithPropagator(propagation.TraceContext{}),
			attrs,
		)
	}
	return otelkafka.NewWriter(baseWriter,
		otelkafka.WithPropagator(propagation.TraceContext{}),
		attrs,
	)
}

// setupStore picks Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise.
func (c *Container) setupStore(ctx context.Context) (order.Store, error) {
	if c.config.DatabaseURL == "" {
		c.logger.Info("No DATABASE_URL configured, using in-memory order store")
		return order.NewMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, c.config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	c.pool = pool

	store := postgres.NewStore(pool)
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize order schema: %w", err)
	}

	c.logger.Info("Using Postgres order store")
	return store, nil
}

// setupDomain wires the saga coordinator on top of the infrastructure.
func (c *Container) setupDomain(store order.Store) {
	publisher := order.NewEventPublisher(c.orderProducer, c.logger)
	service := order.NewService(store, publisher, c.logger, c.tracer)

	consumerMetrics := order.NewConsumerMetrics(prometheus.DefaultRegisterer)
	handler := order.NewStockResponseHandler(service, c.deadLetter, c.logger, consumerMetrics)
	c.consumerService = order.NewConsumerService(c.stockConsumer, handler, c.logger)

	httpMetrics := api.NewMetrics(prometheus.DefaultRegisterer)
	c.apiServer = api.NewServer(service, c.logger, httpMetrics)
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.stockConsumer != nil {
		if err := c.stockConsumer.Close(); err != nil {
			c.logger.Error("Failed to close stock response consumer", zap.Error(err))
		}
	}

	if c.orderProducer != nil {
		if err := c.orderProducer.Close(); err != nil {
			c.logger.Error("Failed to close OrderCreated producer", zap.Error(err))
		}
	}

	if c.deadLetter != nil {
		if err := c.deadLetter.Close(); err != nil {
			c.logger.Error("Failed to close dead letter producer", zap.Error(err))
		}
	}

	if c.pool != nil {
		c.pool.Close()
	}

	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel tracing", zap.Error(err))
		}
	}

	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel logging", zap.Error(err))
		}
	}

	if err := c.logger.Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing application components
func (c *Container) Logger() observability.Logger         { return c.logger }
func (c *Container) ConsumerService() order.ConsumerService { return c.consumerService }
func (c *Container) APIServer() *api.Server               { return c.apiServer }
func (c *Container) HTTPAddr() string                     { return ":" + c.config.HTTPPort }
