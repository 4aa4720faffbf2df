package sqlite_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/store/sqlite"
	"github.com/fistfulayen/ubtrippin-sub001/store/storetest"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sdb := sqlitedriver.New()
	require.NoError(t, sdb.Open(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), driver.WithPoolSize(1)))

	db, err := grove.Open(sdb)
	require.NoError(t, err)

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestEnqueueBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	w := storetest.NewWebhook("u1", true)
	require.NoError(t, s.CreateWebhook(ctx, w))

	d := storetest.NewDelivery(w.ID, time.Now().UTC())
	e := delivery.NewQueueEntry(d, 1, time.Now())
	dup := *e

	err := s.EnqueueBatch(ctx, []*delivery.Delivery{d}, []*delivery.QueueEntry{e, &dup})
	require.Error(t, err, "duplicate queue IDs must fail the batch")

	_, err = s.GetDelivery(ctx, d.ID)
	assert.ErrorIs(t, err, ubtrippin.ErrDeliveryNotFound, "delivery rolled back with its entries")
}

func TestTimestampsKeepNanoseconds(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	_, ds, es := storetest.Seed(t, s, "u1", 1, at)

	got, err := s.GetDelivery(ctx, ds[0].ID)
	require.NoError(t, err)
	assert.True(t, ds[0].CreatedAt.Equal(got.CreatedAt))

	e, ok, err := s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(e.DeliverAfter), "got %s", e.DeliverAfter)

	require.NoError(t, s.Requeue(ctx, es[0]))
	due, err := s.DueEntries(ctx, at, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	due, err = s.DueEntries(ctx, at.Add(-time.Nanosecond), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTimestampsSortAcrossOffsets(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// Same instant written from a non-UTC clock still orders by instant.
	paris := time.FixedZone("CET", 3600)
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, paris)
	_, _, es := storetest.Seed(t, s, "u1", 1, at)

	due, err := s.DueEntries(ctx, at.UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, es[0].ID, due[0].Entry.ID)

	due, err = s.DueEntries(ctx, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1, "09:30Z is after 10:00 CET")
}
