// Package metrics keeps per-account, per-wallet, per-category sums and
// counts consistent at three nested time granularities, updated
// incrementally from transaction lifecycle events without rescanning history
// on the hot path.
package metrics

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"finledger-backend/internal/domain"
	"finledger-backend/internal/storage"
	apperrors "finledger-backend/pkg/errors"
)

// Attribute names of the metric aggregate fields.
const (
	attrSum   = "Sum"
	attrCount = "Count"
)

// Store is the subset of the storage client the aggregator uses.
type Store interface {
	UpdateItems(ctx context.Context, updates []*storage.Update) []storage.UpdateResult
	PutItems(ctx context.Context, entities []domain.Keyed, overwrite bool) []storage.WriteResult
	Query(ctx context.Context, query *storage.Query) ([]map[string]types.AttributeValue, error)
	DeleteAll(ctx context.Context, keys []storage.Key) error
	Codec() *storage.Codec
}

// TransactionUpdate pairs a transaction's previous state with the fields an
// update provided.
type TransactionUpdate struct {
	Old   domain.Transaction
	Patch domain.TransactionPatch
}

// Aggregator folds transaction lifecycle events into metric rows. All
// mutation goes through additive updates, so concurrent writers converge
// without locking; no writer exclusively owns a metric row.
type Aggregator struct {
	store  Store
	logger *zap.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// HandleCreated folds one or many newly created transactions into their
// metric rows.
func (a *Aggregator) HandleCreated(ctx context.Context, accountID string, txs []domain.Transaction) error {
	deltas := deltaSet{}
	for i := range txs {
		if err := deltas.accumulateCreated(&txs[i]); err != nil {
			return err
		}
	}
	return a.applyDeltas(ctx, accountID, deltas)
}

// HandleUpdated folds a single transaction update into its metric rows.
func (a *Aggregator) HandleUpdated(ctx context.Context, accountID string, old domain.Transaction, patch domain.TransactionPatch) error {
	deltas := deltaSet{}
	if err := deltas.accumulateUpdated(&old, patch); err != nil {
		return err
	}
	return a.applyDeltas(ctx, accountID, deltas)
}

// HandleBatchUpdated folds many transaction updates into their metric rows,
// coalescing deltas that land on the same row before issuing updates.
func (a *Aggregator) HandleBatchUpdated(ctx context.Context, accountID string, updates []TransactionUpdate) error {
	deltas := deltaSet{}
	for i := range updates {
		if err := deltas.accumulateUpdated(&updates[i].Old, updates[i].Patch); err != nil {
			return err
		}
	}
	return a.applyDeltas(ctx, accountID, deltas)
}

// applyDeltas issues one additive update per distinct metric row. ADD is
// commutative, so no optimistic guard is attached; the identity fields are
// SET on every application to materialize lazily created rows.
func (a *Aggregator) applyDeltas(ctx context.Context, accountID string, deltas deltaSet) error {
	updates := make([]*storage.Update, 0, len(deltas))
	for _, key := range deltas.sortedKeys() {
		d := deltas[key]
		if d.isZero() {
			continue
		}

		granularity, err := domain.GranularityForPeriod(key.Period)
		if err != nil {
			return err
		}
		sk, err := domain.MetricSK(key.WalletID, granularity, key.Period, key.CategoryID)
		if err != nil {
			return err
		}

		update := storage.UpdateFor(domain.AccountPK(accountID), sk).
			Set("AccountId", accountID).
			Set("WalletId", key.WalletID).
			Set("Date", key.Period).
			Set("CategoryId", key.CategoryID).
			Set(storage.AttrEntityType, "Metric").
			AddNumber(attrSum, d.Sum).
			Add(attrCount, d.Count)
		updates = append(updates, update)
	}

	if len(updates) == 0 {
		return nil
	}

	failed := 0
	for _, result := range a.store.UpdateItems(ctx, updates) {
		if !result.Succeeded() {
			failed++
			pk, sk := result.Update.Key()
			a.logger.Error("metric delta failed to apply",
				zap.String("pk", pk),
				zap.String("sk", sk),
				zap.Error(result.Err),
			)
		}
	}
	if failed > 0 {
		return apperrors.NewInternalError("some metric deltas failed to apply, wallet needs recalculation", nil)
	}

	a.logger.Debug("metric deltas applied",
		zap.String("accountId", accountID),
		zap.Int("rows", len(updates)),
	)
	return nil
}

// Recalculate rebuilds every metric row of a wallet from its full
// transaction history: delete the existing rows, re-read the transactions,
// re-run the creation rule over the full set, and overwrite the resulting
// rows unconditionally. This is the reconciliation source of truth.
func (a *Aggregator) Recalculate(ctx context.Context, accountID, walletID string) error {
	pk := domain.AccountPK(accountID)

	// Existing metric rows, keys only.
	metricItems, err := a.store.Query(ctx,
		storage.QueryFor(pk).
			SortKeyBeginsWith(domain.MetricPrefix(walletID)).
			WithProjection(storage.AttrPK, storage.AttrSK))
	if err != nil {
		return err
	}

	keys := make([]storage.Key, 0, len(metricItems))
	for _, item := range metricItems {
		pkAttr, pkOK := item[storage.AttrPK].(*types.AttributeValueMemberS)
		skAttr, skOK := item[storage.AttrSK].(*types.AttributeValueMemberS)
		if !pkOK || !skOK {
			continue
		}
		keys = append(keys, storage.Key{PK: pkAttr.Value, SK: skAttr.Value})
	}
	if len(keys) > 0 {
		if err := a.store.DeleteAll(ctx, keys); err != nil {
			return err
		}
	}

	// Full transaction history of the wallet.
	txItems, err := a.store.Query(ctx,
		storage.QueryFor(pk).SortKeyBeginsWith(domain.TransactionSK(walletID, "", "")))
	if err != nil {
		return err
	}

	deltas := deltaSet{}
	for _, item := range txItems {
		var tx domain.Transaction
		a.store.Codec().Unmarshal(item, &tx)
		if err := deltas.accumulateCreated(&tx); err != nil {
			return err
		}
	}

	rows := make([]domain.Keyed, 0, len(deltas))
	for _, key := range deltas.sortedKeys() {
		d := deltas[key]
		rows = append(rows, &domain.Metric{
			AccountID:  accountID,
			WalletID:   key.WalletID,
			Date:       key.Period,
			CategoryID: key.CategoryID,
			Sum:        d.Sum,
			Count:      d.Count,
			VersionID:  1,
		})
	}

	for _, result := range a.store.PutItems(ctx, rows, true) {
		if !result.Succeeded() {
			return apperrors.NewInternalError("metric recalculation failed to write a row", result.Err)
		}
	}

	a.logger.Info("wallet metrics recalculated",
		zap.String("accountId", accountID),
		zap.String("walletId", walletID),
		zap.Int("transactions", len(txItems)),
		zap.Int("rows", len(rows)),
	)
	return nil
}
