// Package di wires the application's dependencies explicitly. Every
// operation receives its collaborators through the container, which keeps
// construction in one place and makes deterministic test doubles possible.
package di

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"finledger-backend/internal/config"
	"finledger-backend/internal/events"
	"finledger-backend/internal/ledger"
	"finledger-backend/internal/metrics"
	"finledger-backend/internal/operations"
	"finledger-backend/internal/storage"
)

// Container holds the constructed application graph.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      *storage.Client
	Publisher  events.Publisher
	Ledger     *ledger.Ledger
	Aggregator *metrics.Aggregator
	Operations *operations.Service
}

// NewContainer builds the full dependency graph from configuration.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}

	store := storage.NewClient(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventBusName != "" {
		publisher = events.NewEventBridgePublisher(
			eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
	}

	led := ledger.New(store, publisher, logger)
	aggregator := metrics.NewAggregator(store, logger)

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Publisher:  publisher,
		Ledger:     led,
		Aggregator: aggregator,
		Operations: operations.NewService(store, led, aggregator, logger),
	}, nil
}

// Close flushes buffered log entries.
func (c *Container) Close() {
	_ = c.Logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
