// Package operations implements the business operations over the core:
// entity creation with sequence-allocated ids, transaction posting and
// updates, and the change-tracking plus metric bookkeeping each of them
// owes. Transport-level request handling stays outside this module.
package operations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finledger-backend/internal/domain"
	"finledger-backend/internal/ledger"
	"finledger-backend/internal/metrics"
	"finledger-backend/internal/storage"
	apperrors "finledger-backend/pkg/errors"
)

// Service executes business operations. Dependencies are injected
// explicitly, so tests can substitute deterministic doubles underneath the
// storage client.
type Service struct {
	store      *storage.Client
	ledger     *ledger.Ledger
	aggregator *metrics.Aggregator
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates an operations service.
func NewService(store *storage.Client, led *ledger.Ledger, aggregator *metrics.Aggregator, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		ledger:     led,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// CreateAccount creates an account with its version counter row and commits
// the creation to the ledger.
func (s *Service) CreateAccount(ctx context.Context, userID, name string) (*domain.Account, error) {
	account := &domain.Account{
		UserID:    userID,
		AccountID: uuid.NewString(),
		Name:      name,
		CreatedAt: s.timestamp(),
	}

	if err := s.store.PutItem(ctx, account, false); err != nil {
		return nil, err
	}
	if err := s.ledger.InitAccountMetadata(ctx, account.AccountID); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Commit(ctx, account.AccountID, []domain.ItemChange{
		domain.NewItemChange(account, domain.OperationAdd),
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// CreateWallet allocates the next 4-digit wallet id and creates the wallet.
func (s *Service) CreateWallet(ctx context.Context, accountID, name, currency string) (*domain.Wallet, error) {
	next, err := s.store.GetNext(ctx, domain.AccountPK(accountID), domain.WalletSK(""))
	if err != nil {
		return nil, err
	}

	wallet := &domain.Wallet{
		AccountID: accountID,
		WalletID:  domain.FormatWalletID(next),
		Name:      name,
		Currency:  currency,
		CreatedAt: s.timestamp(),
	}

	if err := s.store.PutItem(ctx, wallet, false); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Commit(ctx, accountID, []domain.ItemChange{
		domain.NewItemChange(wallet, domain.OperationAdd),
	}); err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreateCategory allocates the next 2-digit category id and creates the
// category.
func (s *Service) CreateCategory(ctx context.Context, accountID, name string) (*domain.Category, error) {
	next, err := s.store.GetNext(ctx, domain.AccountPK(accountID), domain.CategorySK(""))
	if err != nil {
		return nil, err
	}

	category := &domain.Category{
		AccountID:  accountID,
		CategoryID: domain.FormatCategoryID(next),
		Name:       name,
		CreatedAt:  s.timestamp(),
	}

	if err := s.store.PutItem(ctx, category, false); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Commit(ctx, accountID, []domain.ItemChange{
		domain.NewItemChange(category, domain.OperationAdd),
	}); err != nil {
		return nil, err
	}
	return category, nil
}

// CreateCategoryRule validates and creates a classification rule.
func (s *Service) CreateCategoryRule(ctx context.Context, rule *domain.CategoryRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.RuleID == "" {
		rule.RuleID = uuid.NewString()
	}

	if err := s.store.PutItem(ctx, rule, false); err != nil {
		return err
	}
	_, err := s.ledger.Commit(ctx, rule.AccountID, []domain.ItemChange{
		domain.NewItemChange(rule, domain.OperationAdd),
	})
	return err
}

// GetCategory retrieves a single category. Zero rows where exactly one was
// expected surfaces as a NotFound error.
func (s *Service) GetCategory(ctx context.Context, accountID, categoryID string) (*domain.Category, error) {
	category := &domain.Category{AccountID: accountID, CategoryID: categoryID}
	found, err := s.store.Load(ctx, category)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFoundError("category %s not found in account %s", categoryID, accountID)
	}
	return category, nil
}

// PostTransactions writes a batch of transactions, commits the successful
// writes to the ledger and folds them into the metrics. Partial failure is
// normal: the caller receives every item's result and the change-set covers
// exactly the successes.
func (s *Service) PostTransactions(ctx context.Context, accountID string, txs []domain.Transaction) ([]storage.WriteResult, *domain.ChangeSet, error) {
	entities := make([]domain.Keyed, len(txs))
	for i := range txs {
		if txs[i].TransactionID == "" {
			txs[i].TransactionID = uuid.NewString()
		}
		txs[i].AccountID = accountID
		entities[i] = &txs[i]
	}

	results := s.store.PutItems(ctx, entities, false)

	changeSet, err := s.ledger.Commit(ctx, accountID, ledger.AddedItems(results))
	if err != nil {
		return results, nil, err
	}

	created := make([]domain.Transaction, 0, len(results))
	for i, result := range results {
		if result.Succeeded() {
			created = append(created, txs[i])
		}
	}
	if len(created) > 0 {
		if err := s.aggregator.HandleCreated(ctx, accountID, created); err != nil {
			return results, changeSet, err
		}
	}
	return results, changeSet, nil
}

// UpdateTransaction applies a guarded update to one transaction: every
// provided field carries a compare-and-set guard requiring its previous
// value to still hold, then the change is committed and folded into the
// metrics.
func (s *Service) UpdateTransaction(ctx context.Context, accountID string, old domain.Transaction, patch domain.TransactionPatch) error {
	update, err := transactionUpdate(accountID, &old, patch)
	if err != nil {
		return err
	}

	if err := s.store.UpdateItem(ctx, update); err != nil {
		return err
	}

	pk, sk := update.Key()
	if _, err := s.ledger.Commit(ctx, accountID, []domain.ItemChange{{
		EntityType:   "Transaction",
		PartitionKey: pk,
		SortKey:      sk,
		Operation:    domain.OperationUpdate,
	}}); err != nil {
		return err
	}

	return s.aggregator.HandleUpdated(ctx, accountID, old, patch)
}

// ReclassifyTransactions applies guarded category updates to many
// transactions at once. Only the transactions whose guards held are
// committed and folded into the metrics; the rest are reported per item.
func (s *Service) ReclassifyTransactions(ctx context.Context, accountID string, changes []metrics.TransactionUpdate) ([]storage.UpdateResult, error) {
	updates := make([]*storage.Update, len(changes))
	for i := range changes {
		update, err := transactionUpdate(accountID, &changes[i].Old, changes[i].Patch)
		if err != nil {
			return nil, err
		}
		updates[i] = update
	}

	results := s.store.UpdateItems(ctx, updates)

	if _, err := s.ledger.Commit(ctx, accountID, ledger.UpdatedItems(results, "Transaction")); err != nil {
		return results, err
	}

	applied := make([]metrics.TransactionUpdate, 0, len(results))
	for i, result := range results {
		if result.Succeeded() {
			applied = append(applied, changes[i])
		}
	}
	if len(applied) > 0 {
		if err := s.aggregator.HandleBatchUpdated(ctx, accountID, applied); err != nil {
			return results, err
		}
	}
	return results, nil
}

// RecalculateWalletMetrics rebuilds a wallet's metric rows from its full
// transaction history.
func (s *Service) RecalculateWalletMetrics(ctx context.Context, accountID, walletID string) error {
	return s.aggregator.Recalculate(ctx, accountID, walletID)
}

// transactionUpdate builds the guarded update for a transaction patch. An
// empty patch is a validation error: there is nothing to update.
func transactionUpdate(accountID string, old *domain.Transaction, patch domain.TransactionPatch) (*storage.Update, error) {
	if patch.Description == nil && patch.Value == nil && patch.CategoryID == nil {
		return nil, apperrors.NewValidationError("transaction %s: update provides no fields", old.TransactionID)
	}

	update := storage.UpdateFor(
		domain.AccountPK(accountID),
		domain.TransactionSK(old.WalletID, old.Date, old.TransactionID),
	)
	if patch.Description != nil {
		update.SetChecked("Description", *patch.Description, old.Description)
	}
	if patch.Value != nil {
		update.SetChecked("Value", storage.Number(*patch.Value), storage.Number(old.Value))
	}
	if patch.CategoryID != nil {
		update.SetChecked("CategoryId", *patch.CategoryID, old.CategoryID)
	}
	return update, nil
}
