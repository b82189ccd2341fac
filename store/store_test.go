package store_test

import (
	"context"
	"testing"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/store"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strp(s string) *string { return &s }

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, "2026-08-03T10:00:00Z", callmanager.Outbound, nil, strp("5551234567"), strp("+15551234567"), strp("1"))
	require.NoError(t, err)

	rec, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, callmanager.Outbound, rec.Direction)
	require.Equal(t, callmanager.StatusInProgress, rec.Status)
	require.Equal(t, "1", *rec.SpeedDialCode)
}

func TestCloseRecordSetsTerminalFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, "2026-08-03T10:00:00Z", callmanager.Inbound, strp("5559990000"), nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.CloseRecord(ctx, id, callmanager.StatusCompleted, 42, nil))

	rec, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, callmanager.StatusCompleted, rec.Status)
	require.Equal(t, 42, rec.DurationSeconds)
}

func TestListFiltersByDirection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Insert(ctx, "2026-08-03T10:00:00Z", callmanager.Outbound, nil, strp("1"), strp("+15551234567"), nil)
	require.NoError(t, err)
	_, err = db.Insert(ctx, "2026-08-03T10:01:00Z", callmanager.Inbound, strp("5551230000"), nil, nil, nil)
	require.NoError(t, err)

	inbound := callmanager.Inbound
	recs, err := db.List(ctx, store.Filter{Direction: &inbound})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, callmanager.Inbound, recs[0].Direction)
}

func TestDeleteRemovesRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, "2026-08-03T10:00:00Z", callmanager.Outbound, nil, strp("1"), strp("+1"), nil)
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, id))
	_, err = db.Get(ctx, id)
	require.Error(t, err)
}

func TestCloseRecordUnknownIDFails(t *testing.T) {
	db := openTestDB(t)
	require.Error(t, db.CloseRecord(context.Background(), 9999, callmanager.StatusCompleted, 1, nil))
}
