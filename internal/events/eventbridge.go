package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "finledger-backend/pkg/errors"
)

// EventBridgeAPI is the subset of the EventBridge client the publisher uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher announces change-sets on an EventBridge bus. Calls go
// through a circuit breaker so that a broken bus degrades announcements fast
// instead of adding a timeout to every committed write.
type EventBridgePublisher struct {
	client  EventBridgeAPI
	busName string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewEventBridgePublisher creates a publisher for the given bus.
func NewEventBridgePublisher(client EventBridgeAPI, busName string, logger *zap.Logger) *EventBridgePublisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "eventbridge-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &EventBridgePublisher{
		client:  client,
		busName: busName,
		breaker: breaker,
		logger:  logger,
	}
}

// PublishAccountVersion sends one announcement entry to the bus.
func (p *EventBridgePublisher) PublishAccountVersion(ctx context.Context, event AccountVersionEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal announcement detail", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		input := &eventbridge.PutEventsInput{
			Entries: []ebtypes.PutEventsRequestEntry{
				{
					EventBusName: aws.String(p.busName),
					Source:       aws.String(Source),
					DetailType:   aws.String(DetailTypeAccountVersion),
					Detail:       aws.String(string(detail)),
					Time:         aws.Time(time.Now().UTC()),
				},
			},
		}

		out, err := p.client.PutEvents(ctx, input)
		if err != nil {
			return nil, err
		}
		if out.FailedEntryCount > 0 {
			for _, entry := range out.Entries {
				if entry.ErrorCode != nil {
					p.logger.Error("announcement entry rejected",
						zap.String("errorCode", aws.ToString(entry.ErrorCode)),
						zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
					)
				}
			}
			return nil, fmt.Errorf("%d announcement entries failed", out.FailedEntryCount)
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.NewInternalError("failed to publish announcement", err)
	}

	p.logger.Debug("announcement published",
		zap.String("accountId", event.AccountID),
		zap.Int64("version", event.Version),
		zap.String("eventBus", p.busName),
	)
	return nil
}
