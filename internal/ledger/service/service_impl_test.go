package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(&domain.Account{}, &domain.Entry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, db, fake
}

func TestChargeDebitsBalance(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 10, "pay-1", nil))

	ok, err := svc.Charge(ctx, "u1", 3, "admission:a1", map[string]any{"op": "generation"})
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(7), balance)
}

func TestChargeInsufficientHasNoSideEffects(t *testing.T) {
	svc, db, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 2, "pay-1", nil))

	ok, err := svc.Charge(ctx, "u1", 5, "", nil)
	require.NoError(t, err)
	require.False(t, ok)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(2), balance)

	var count int64
	require.NoError(t, db.Model(&domain.Entry{}).Where("kind = ?", domain.KindCharge).Count(&count).Error)
	require.Zero(t, count)
}

func TestChargeKeyedByReferenceIsFindable(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 10, "pay-1", nil))

	ok, err := svc.Charge(ctx, "u1", 3, "admission:a1", nil)
	require.NoError(t, err)
	require.True(t, ok)

	entry, err := svc.FindByReference(ctx, "admission:a1")
	require.NoError(t, err)
	require.Equal(t, "u1", entry.UserID)
	require.Equal(t, domain.KindCharge, entry.Kind)
	require.Equal(t, int64(-3), entry.Amount)

	// a second charge under the same reference is rolled back entirely
	ok, err = svc.Charge(ctx, "u1", 3, "admission:a1", nil)
	require.ErrorIs(t, err, domain.ErrDuplicateReference)
	require.False(t, ok)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(7), balance)
}

func TestFindByReferenceUnknown(t *testing.T) {
	svc, _, _ := setupLedger(t)

	_, err := svc.FindByReference(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestChargeUnknownUserDenied(t *testing.T) {
	svc, _, _ := setupLedger(t)

	ok, err := svc.Charge(context.Background(), "nobody", 1, "", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBalanceEqualsSumOfCompletedEntries(t *testing.T) {
	svc, db, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 10, "pay-1", nil))
	require.NoError(t, svc.RecordPending(ctx, "u1", 5, "pay-2", nil))

	ok, err := svc.Charge(ctx, "u1", 4, "", nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Refund(ctx, "u1", 4, "refund:a1", nil))

	var sum int64
	require.NoError(t, db.Model(&domain.Entry{}).
		Where("user_id = ? AND status = ?", "u1", domain.StatusCompleted).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, sum, balance)
	require.Equal(t, int64(10), balance)
}

func TestAllocateDuplicateReferenceCreditsOnce(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 10, "pay-1", nil))
	err := svc.Allocate(ctx, "u1", 10, "pay-1", nil)
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestAllocateForeignReferenceCreditsNobody(t *testing.T) {
	svc, db, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordPending(ctx, "owner", 50, "ref-x", nil))

	err := svc.Allocate(ctx, "intruder", 50, "ref-x", nil)
	require.ErrorIs(t, err, domain.ErrReferenceConflict)

	balance, err := svc.Balance(ctx, "owner")
	require.NoError(t, err)
	require.Zero(t, balance)
	balance, err = svc.Balance(ctx, "intruder")
	require.NoError(t, err)
	require.Zero(t, balance)

	var entry domain.Entry
	require.NoError(t, db.Where("external_reference = ?", "ref-x").First(&entry).Error)
	require.Equal(t, "owner", entry.UserID)
	require.Equal(t, domain.StatusPending, entry.Status, "the owner's pending entry stays untouched")

	// the rightful owner can still settle it
	require.NoError(t, svc.Allocate(ctx, "owner", 50, "ref-x", nil))
	balance, err = svc.Balance(ctx, "owner")
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestAllocateCompletesPendingEntry(t *testing.T) {
	svc, db, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordPending(ctx, "u1", 10, "pay-1", nil))

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, balance, "pending entries must not count toward balance")

	require.NoError(t, svc.Allocate(ctx, "u1", 10, "pay-1", nil))

	balance, err = svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)

	var entries []*domain.Entry
	require.NoError(t, db.Where("external_reference = ?", "pay-1").Find(&entries).Error)
	require.Len(t, entries, 1, "completion must reuse the pending entry")
	require.Equal(t, domain.StatusCompleted, entries[0].Status)
}

func TestAllocateAfterFailureRejected(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordPending(ctx, "u1", 10, "pay-1", nil))
	require.NoError(t, svc.MarkFailed(ctx, "pay-1"))

	err := svc.Allocate(ctx, "u1", 10, "pay-1", nil)
	require.ErrorIs(t, err, domain.ErrReferenceFailed)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestMarkFailedUnknownReference(t *testing.T) {
	svc, _, _ := setupLedger(t)

	err := svc.MarkFailed(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestRefundIdempotentPerReference(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 5, "pay-1", nil))
	ok, err := svc.Charge(ctx, "u1", 5, "", nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Refund(ctx, "u1", 5, "refund:a1", nil))
	err = svc.Refund(ctx, "u1", 5, "refund:a1", nil)
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(5), balance)
}

func TestConcurrentChargesNeverOverspend(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, "u1", 5, "pay-1", nil))

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		charged int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Charge(ctx, "u1", 1, "", nil)
			if err != nil {
				return
			}
			if ok {
				mu.Lock()
				charged++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, charged)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestConcurrentDuplicateAllocations(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Allocate(ctx, "u1", 10, "pay-1", nil); err == nil {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, credited)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestEntriesPagination(t *testing.T) {
	svc, _, _ := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Allocate(ctx, "u1", 1, fmt.Sprintf("pay-%d", i), nil))
	}

	resp, err := svc.Entries(ctx, domain.ListEntriesRequest{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 5)
	require.False(t, resp.HasMore)

	first, err := svc.Entries(ctx, listWithSize("u1", 2, ""))
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.True(t, first.HasMore)

	second, err := svc.Entries(ctx, listWithSize("u1", 10, first.NextPageToken))
	require.NoError(t, err)
	require.Len(t, second.Entries, 3)
	require.False(t, second.HasMore)
}

func TestEntriesBadPageToken(t *testing.T) {
	svc, _, _ := setupLedger(t)

	_, err := svc.Entries(context.Background(), listWithSize("u1", 10, "not-a-token"))
	require.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestPendingAllocationsWindow(t *testing.T) {
	svc, _, fake := setupLedger(t)
	ctx := context.Background()

	start := fake.Now()
	require.NoError(t, svc.RecordPending(ctx, "u1", 1, "old", nil))
	fake.Advance(30 * time.Minute)
	require.NoError(t, svc.RecordPending(ctx, "u1", 1, "recent", nil))

	// entries older than 10 minutes, looking back one hour
	entries, err := svc.PendingAllocations(ctx, fake.Now().Add(-10*time.Minute), start.Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "old", *entries[0].ExternalReference)
}

func listWithSize(userID string, size int, token string) domain.ListEntriesRequest {
	req := domain.ListEntriesRequest{UserID: userID}
	req.PageSize = size
	req.PageToken = token
	return req
}
