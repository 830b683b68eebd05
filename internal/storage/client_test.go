package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finledger-backend/internal/domain"
	"finledger-backend/internal/storage"
	"finledger-backend/internal/storage/storetest"
	apperrors "finledger-backend/pkg/errors"
)

func newTestClient(t *testing.T) (*storage.Client, *storetest.FakeDynamo) {
	t.Helper()
	db := storetest.NewFakeDynamo()
	return storage.NewClient(db, "ledger", zap.NewNop()), db
}

func wallet(id int) *domain.Wallet {
	return &domain.Wallet{
		AccountID: "a1",
		WalletID:  domain.FormatWalletID(int64(id)),
		Name:      fmt.Sprintf("wallet %d", id),
		Currency:  "BRL",
	}
}

func TestClient_PutItem_RejectsDuplicateIdentity(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.PutItem(ctx, wallet(1), false))
	assert.Equal(t, 1, db.Len())

	err := client.PutItem(ctx, wallet(1), false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConditionFailed(err))
	assert.Equal(t, 1, db.Len())
}

func TestClient_PutItem_OverwriteReplaces(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.PutItem(ctx, wallet(1), false))

	renamed := wallet(1)
	renamed.Name = "renamed"
	require.NoError(t, client.PutItem(ctx, renamed, true))

	assert.Equal(t, 1, db.Len())
	loaded := &domain.Wallet{AccountID: "a1", WalletID: "0001"}
	found, err := client.Load(ctx, loaded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "renamed", loaded.Name)
}

func TestClient_PutItems_ResultsAreIndexStable(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	entities := make([]domain.Keyed, 0, 60)
	for i := 1; i <= 60; i++ {
		entities = append(entities, wallet(i))
	}
	// Poison two sort keys anywhere in the batch.
	db.FailPut[domain.WalletSK("0007")] = fmt.Errorf("throttled")
	db.FailPut[domain.WalletSK("0042")] = fmt.Errorf("throttled")

	results := client.PutItems(ctx, entities, false)
	require.Len(t, results, 60)

	for i, result := range results {
		assert.Same(t, entities[i], result.Entity, "result %d must keep its input slot", i)
		if i == 6 || i == 41 {
			assert.False(t, result.Succeeded())
		} else {
			assert.True(t, result.Succeeded(), "item %d", i)
		}
	}
	assert.Equal(t, 58, db.Len())
}

func TestClient_PutItems_Empty(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Empty(t, client.PutItems(context.Background(), nil, false))
}

func TestClient_QueryAll(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, client.PutItem(ctx, wallet(i), false))
	}
	require.NoError(t, client.PutItem(ctx, &domain.Category{AccountID: "a1", CategoryID: "01", Name: "Groceries"}, false))

	partition, err := client.QueryAll(ctx, domain.AccountPK("a1"), "")
	require.NoError(t, err)
	assert.Len(t, partition, 4)

	exact, err := client.QueryAll(ctx, domain.AccountPK("a1"), domain.WalletSK("0002"))
	require.NoError(t, err)
	require.Len(t, exact, 1)
}

func TestClient_Query_Prefix(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, client.PutItem(ctx, wallet(i), false))
	}
	require.NoError(t, client.PutItem(ctx, &domain.Category{AccountID: "a1", CategoryID: "01", Name: "Groceries"}, false))

	items, err := client.Query(ctx, storage.QueryFor(domain.AccountPK("a1")).SortKeyBeginsWith("WALLET#"))
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestClient_GetNext(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	next, err := client.GetNext(ctx, domain.AccountPK("a1"), "WALLET#")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	require.NoError(t, client.PutItem(ctx, wallet(1), false))
	require.NoError(t, client.PutItem(ctx, wallet(2), false))
	// Rows under other prefixes must not shift the sequence.
	require.NoError(t, client.PutItem(ctx, &domain.Category{AccountID: "a1", CategoryID: "01", Name: "Groceries"}, false))

	next, err = client.GetNext(ctx, domain.AccountPK("a1"), "WALLET#")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestClient_UpdateItem_GuardMismatchFails(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	tx := &domain.Transaction{
		AccountID: "a1", WalletID: "0001", TransactionID: "tx1",
		Date: "2020-02-01", ReferenceMonth: "2020-02",
		Description: "old", Value: decimal.NewFromInt(5), CategoryID: "01",
	}
	require.NoError(t, client.PutItem(ctx, tx, false))

	stale := storage.UpdateFor(tx.PartitionKey(), tx.SortKey()).
		SetChecked("CategoryId", "02", "99")
	err := client.UpdateItem(ctx, stale)
	require.Error(t, err)
	assert.True(t, apperrors.IsConditionFailed(err))

	fresh := storage.UpdateFor(tx.PartitionKey(), tx.SortKey()).
		SetChecked("CategoryId", "02", "01")
	require.NoError(t, client.UpdateItem(ctx, fresh))

	stored := db.Item(tx.PartitionKey(), tx.SortKey())
	require.NotNil(t, stored)
	loaded := &domain.Transaction{}
	client.Codec().Unmarshal(stored, loaded)
	assert.Equal(t, "02", loaded.CategoryID)
	assert.Equal(t, int64(1), loaded.VersionID)
}

func TestClient_UpdateItems_PartialFailure(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	tx := &domain.Transaction{
		AccountID: "a1", WalletID: "0001", TransactionID: "tx1",
		Date: "2020-02-01", ReferenceMonth: "2020-02",
		Value: decimal.NewFromInt(5), CategoryID: "01",
	}
	require.NoError(t, client.PutItem(ctx, tx, false))

	updates := []*storage.Update{
		storage.UpdateFor(tx.PartitionKey(), tx.SortKey()).SetChecked("CategoryId", "02", "01"),
		storage.UpdateFor(tx.PartitionKey(), domain.TransactionSK("0001", "2020-02-01", "missing")).
			Set("CategoryId", "02").RequireExists(),
	}
	results := client.UpdateItems(ctx, updates)
	require.Len(t, results, 2)

	assert.True(t, results[0].Succeeded())
	assert.Same(t, updates[0], results[0].Update)
	assert.False(t, results[1].Succeeded())
	assert.True(t, apperrors.IsConditionFailed(results[1].Err))
}

func TestClient_DeleteAll(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	var keys []storage.Key
	for i := 1; i <= 30; i++ {
		w := wallet(i)
		require.NoError(t, client.PutItem(ctx, w, false))
		keys = append(keys, storage.KeyOf(w))
	}
	require.Equal(t, 30, db.Len())

	require.NoError(t, client.DeleteAll(ctx, keys))
	assert.Equal(t, 0, db.Len())
}

func TestClient_Load_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	found, err := client.Load(context.Background(), &domain.Wallet{AccountID: "a1", WalletID: "0001"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_GetItem_MissingRowIsNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetItem(context.Background(), domain.AccountPK("a1"), domain.MetadataSK)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
