// Package events defines the change-set announcement contract and its
// EventBridge implementation.
package events

import (
	"context"

	"finledger-backend/internal/domain"
)

// Source identifies this system on the event bus.
const Source = "finledger.core"

// DetailTypeAccountVersion is the detail-type of change-set announcements.
const DetailTypeAccountVersion = "new account version"

// AccountVersionEvent is the announcement payload: which account moved to
// which version, and the rows that changed. Consumers that must never miss a
// change-set should re-derive it from the VERSION#<n> ledger row rather than
// relying solely on this best-effort announcement.
type AccountVersionEvent struct {
	AccountID string              `json:"accountId"`
	Version   int64               `json:"version"`
	ChangeSet []domain.ItemChange `json:"changeSet"`
}

// Publisher announces account version changes on an external event channel.
type Publisher interface {
	PublishAccountVersion(ctx context.Context, event AccountVersionEvent) error
}

// NopPublisher discards announcements. Used in tests and offline tooling.
type NopPublisher struct{}

func (NopPublisher) PublishAccountVersion(context.Context, AccountVersionEvent) error {
	return nil
}
