package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finledger-backend/internal/domain"
	"finledger-backend/internal/events"
	"finledger-backend/internal/ledger"
	"finledger-backend/internal/storage"
	"finledger-backend/internal/storage/storetest"
	apperrors "finledger-backend/pkg/errors"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.AccountVersionEvent
	err    error
}

func (p *capturingPublisher) PublishAccountVersion(ctx context.Context, event events.AccountVersionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) published() []events.AccountVersionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.AccountVersionEvent(nil), p.events...)
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *storage.Client, *capturingPublisher, *storetest.FakeDynamo) {
	t.Helper()
	db := storetest.NewFakeDynamo()
	store := storage.NewClient(db, "ledger", zap.NewNop())
	publisher := &capturingPublisher{}
	return ledger.New(store, publisher, zap.NewNop()), store, publisher, db
}

func addChange(sk string) domain.ItemChange {
	return domain.ItemChange{
		EntityType:   "Transaction",
		PartitionKey: domain.AccountPK("a1"),
		SortKey:      sk,
		Operation:    domain.OperationAdd,
	}
}

func TestLedger_FirstCommitIsVersionOne(t *testing.T) {
	l, store, publisher, db := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))

	changeSet, err := l.Commit(ctx, "a1", []domain.ItemChange{addChange("TX#0001#2020-02-01#tx1")})
	require.NoError(t, err)
	require.NotNil(t, changeSet)
	assert.Equal(t, int64(1), changeSet.Version)

	// The change-set is durably recorded under its version.
	assert.NotNil(t, db.Item(domain.AccountPK("a1"), domain.VersionSK(1)))

	// The counter row reflects the allocated version.
	metadata := &domain.AccountMetadata{AccountID: "a1"}
	found, err := store.Load(ctx, metadata)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), metadata.Version)

	published := publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "a1", published[0].AccountID)
	assert.Equal(t, int64(1), published[0].Version)
	assert.Len(t, published[0].ChangeSet, 1)
}

func TestLedger_VersionsAreSequential(t *testing.T) {
	l, _, _, db := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))

	for i := 1; i <= 3; i++ {
		changeSet, err := l.Commit(ctx, "a1", []domain.ItemChange{addChange(fmt.Sprintf("TX#0001#2020-02-01#tx%d", i))})
		require.NoError(t, err)
		assert.Equal(t, int64(i), changeSet.Version)
	}
	assert.NotNil(t, db.Item(domain.AccountPK("a1"), domain.VersionSK(3)))
}

func TestLedger_ConcurrentCommitsGetDistinctVersions(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))

	const commits = 20
	versions := make([]int64, commits)
	var g errgroup.Group
	for i := 0; i < commits; i++ {
		i := i
		g.Go(func() error {
			changeSet, err := l.Commit(ctx, "a1", []domain.ItemChange{
				addChange(fmt.Sprintf("TX#0001#2020-02-01#tx%d", i)),
			})
			if err != nil {
				return err
			}
			versions[i] = changeSet.Version
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, commits)
	for _, v := range versions {
		assert.False(t, seen[v], "version %d allocated twice", v)
		seen[v] = true
		assert.GreaterOrEqual(t, v, int64(1))
		assert.LessOrEqual(t, v, int64(commits))
	}
}

func TestLedger_EmptyChangesIsNoOp(t *testing.T) {
	l, store, publisher, db := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))
	before := db.Len()

	changeSet, err := l.Commit(ctx, "a1", nil)
	require.NoError(t, err)
	assert.Nil(t, changeSet)
	assert.Equal(t, before, db.Len())
	assert.Empty(t, publisher.published())

	// The counter did not move.
	metadata := &domain.AccountMetadata{AccountID: "a1"}
	found, err := store.Load(ctx, metadata)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), metadata.Version)
}

func TestLedger_MissingMetadataIsVersionConflict(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	// No InitAccountMetadata: the counter row does not exist, so every
	// increment attempt fails its existence guard until the retry budget
	// runs out.
	_, err := l.Commit(context.Background(), "ghost", []domain.ItemChange{addChange("TX#0001#2020-02-01#tx1")})
	require.Error(t, err)
	assert.True(t, apperrors.IsVersionConflict(err))
}

func TestLedger_ChangeSetRowsAreWriteOnce(t *testing.T) {
	l, store, _, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))

	// A foreign row already sitting at VERSION#1 means the counter and the
	// ledger disagree; the commit must fail rather than overwrite history.
	squatter := &domain.ChangeSet{AccountID: "a1", Version: 1}
	require.NoError(t, store.PutItem(ctx, squatter, false))

	_, err := l.Commit(ctx, "a1", []domain.ItemChange{addChange("TX#0001#2020-02-01#tx1")})
	require.Error(t, err)
	assert.True(t, apperrors.IsConditionFailed(err))
}

func TestLedger_ReinitializingAccountFails(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))
	err := l.InitAccountMetadata(ctx, "a1")
	require.Error(t, err)
	assert.True(t, apperrors.IsConditionFailed(err))
}

func TestLedger_PublishFailureDoesNotFailCommit(t *testing.T) {
	l, _, publisher, db := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.InitAccountMetadata(ctx, "a1"))
	publisher.err = errors.New("bus unavailable")

	changeSet, err := l.Commit(ctx, "a1", []domain.ItemChange{addChange("TX#0001#2020-02-01#tx1")})
	require.NoError(t, err)
	require.NotNil(t, changeSet)
	assert.Equal(t, int64(1), changeSet.Version)
	assert.NotNil(t, db.Item(domain.AccountPK("a1"), domain.VersionSK(1)))
}

func TestAddedItems_KeepsOnlySuccessfulWrites(t *testing.T) {
	results := []storage.WriteResult{
		{Entity: &domain.Wallet{AccountID: "a1", WalletID: "0001"}},
		{Entity: &domain.Wallet{AccountID: "a1", WalletID: "0002"}, Err: errors.New("throttled")},
		{Entity: &domain.Wallet{AccountID: "a1", WalletID: "0003"}},
	}

	changes := ledger.AddedItems(results)
	require.Len(t, changes, 2)
	assert.Equal(t, domain.WalletSK("0001"), changes[0].SortKey)
	assert.Equal(t, domain.WalletSK("0003"), changes[1].SortKey)
	for _, change := range changes {
		assert.Equal(t, domain.OperationAdd, change.Operation)
	}
}

func TestUpdatedItems_KeepsOnlySuccessfulUpdates(t *testing.T) {
	ok := storage.UpdateFor(domain.AccountPK("a1"), domain.TransactionSK("0001", "2020-02-01", "tx1")).
		Set("CategoryId", "02")
	failed := storage.UpdateFor(domain.AccountPK("a1"), domain.TransactionSK("0001", "2020-02-01", "tx2")).
		Set("CategoryId", "02")

	results := []storage.UpdateResult{
		{Update: ok},
		{Update: failed, Err: errors.New("condition failed")},
	}

	changes := ledger.UpdatedItems(results, "Transaction")
	require.Len(t, changes, 1)
	assert.Equal(t, domain.TransactionSK("0001", "2020-02-01", "tx1"), changes[0].SortKey)
	assert.Equal(t, domain.OperationUpdate, changes[0].Operation)
	assert.Equal(t, "Transaction", changes[0].EntityType)
}
