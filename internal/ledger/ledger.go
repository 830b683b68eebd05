// Package ledger maintains the per-account version counter and the
// append-only change-set ledger that lets consumers learn what changed about
// an account without reading the whole account.
package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"finledger-backend/internal/domain"
	"finledger-backend/internal/events"
	"finledger-backend/internal/storage"
	apperrors "finledger-backend/pkg/errors"
	"finledger-backend/pkg/retry"
)

// AttrVersion is the wire name of the account version counter.
const AttrVersion = "Version"

// maxVersionAttempts bounds the optimistic counter retries. The loop
// tolerates transient contention but deliberately does not retry forever;
// a caller seeing a version conflict decides whether to retry the whole
// business operation.
const maxVersionAttempts = 3

// Store is the subset of the storage client the ledger uses.
type Store interface {
	UpdateItemReturning(ctx context.Context, update *storage.Update) (map[string]types.AttributeValue, error)
	PutItem(ctx context.Context, entity domain.Keyed, overwrite bool) error
}

// Ledger allocates account versions and records change-sets.
type Ledger struct {
	store     Store
	publisher events.Publisher
	logger    *zap.Logger
}

// New creates a ledger.
func New(store Store, publisher events.Publisher, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, publisher: publisher, logger: logger}
}

// InitAccountMetadata creates the version counter row for a new account.
// The counter is written at 0 so the account's first committed change-set
// gets version 1. Guarded against overwrite: re-initializing an account is a
// failed precondition, never a counter reset.
func (l *Ledger) InitAccountMetadata(ctx context.Context, accountID string) error {
	metadata := &domain.AccountMetadata{AccountID: accountID, Version: 0}
	return l.store.PutItem(ctx, metadata, false)
}

// Commit allocates the next version for the account, durably records the
// change-set under VERSION#<n>, and announces it best-effort. An empty
// change list (an all-failure batch) is a no-op: no version is consumed and
// no change-set is produced.
func (l *Ledger) Commit(ctx context.Context, accountID string, changes []domain.ItemChange) (*domain.ChangeSet, error) {
	if len(changes) == 0 {
		l.logger.Debug("no successful writes in batch, skipping version increment",
			zap.String("accountId", accountID),
		)
		return nil, nil
	}

	version, err := l.nextVersion(ctx, accountID)
	if err != nil {
		return nil, err
	}

	changeSet := &domain.ChangeSet{
		AccountID: accountID,
		Version:   version,
		Changes:   changes,
	}

	// Change-sets are write-once; colliding with an existing version row
	// would mean the counter was tampered with.
	if err := l.store.PutItem(ctx, changeSet, false); err != nil {
		return nil, err
	}

	// Best-effort announcement. Version state and notification are allowed
	// to transiently diverge; the persisted ledger row remains the source
	// of truth for consumers that must not miss a change-set.
	announcement := events.AccountVersionEvent{
		AccountID: accountID,
		Version:   version,
		ChangeSet: changes,
	}
	if err := l.publisher.PublishAccountVersion(ctx, announcement); err != nil {
		l.logger.Error("change-set announcement failed, ledger row remains authoritative",
			zap.String("accountId", accountID),
			zap.Int64("version", version),
			zap.Error(err),
		)
	}

	l.logger.Info("change-set committed",
		zap.String("accountId", accountID),
		zap.Int64("version", version),
		zap.Int("changes", len(changes)),
	)
	return changeSet, nil
}

// nextVersion atomically increments the account's version counter with a
// bounded optimistic retry, returning the new value.
func (l *Ledger) nextVersion(ctx context.Context, accountID string) (int64, error) {
	var version int64

	err := retry.WithLimit(ctx, maxVersionAttempts, func(ctx context.Context) error {
		update := storage.UpdateFor(domain.AccountPK(accountID), domain.MetadataSK).
			Add(AttrVersion, 1).
			RequireExists()

		attrs, err := l.store.UpdateItemReturning(ctx, update)
		if err != nil {
			return err
		}

		member, ok := attrs[AttrVersion].(*types.AttributeValueMemberN)
		if !ok {
			return apperrors.NewInternalError("version counter came back with an unexpected shape", nil)
		}
		parsed, err := strconv.ParseInt(member.Value, 10, 64)
		if err != nil {
			return apperrors.NewInternalError("version counter is not an integer", err)
		}
		version = parsed
		return nil
	})
	if err != nil {
		var exhausted *retry.LimitExceededError
		if errors.As(err, &exhausted) {
			return 0, apperrors.NewVersionConflictError(accountID).WithCause(exhausted.Last)
		}
		return 0, err
	}

	return version, nil
}

// ChangesFromWrites folds a batch's per-item write results into item
// changes, keeping only the successful writes: a failed write never happened
// as far as versioning is concerned. The build function selects the change
// variant (Add, Update, Delete) for each entity.
func ChangesFromWrites(results []storage.WriteResult, build func(domain.Keyed) domain.ItemChange) []domain.ItemChange {
	changes := make([]domain.ItemChange, 0, len(results))
	for _, result := range results {
		if result.Succeeded() {
			changes = append(changes, build(result.Entity))
		}
	}
	return changes
}

// AddedItems builds Add changes from write results.
func AddedItems(results []storage.WriteResult) []domain.ItemChange {
	return ChangesFromWrites(results, func(entity domain.Keyed) domain.ItemChange {
		return domain.NewItemChange(entity, domain.OperationAdd)
	})
}

// UpdatedItems builds Update changes from conditional update results, using
// the keys the updates targeted.
func UpdatedItems(results []storage.UpdateResult, entityType string) []domain.ItemChange {
	changes := make([]domain.ItemChange, 0, len(results))
	for _, result := range results {
		if !result.Succeeded() {
			continue
		}
		pk, sk := result.Update.Key()
		changes = append(changes, domain.ItemChange{
			EntityType:   entityType,
			PartitionKey: pk,
			SortKey:      sk,
			Operation:    domain.OperationUpdate,
		})
	}
	return changes
}
