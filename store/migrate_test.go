package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sustore.dev/core/bytestore"
)

func newDiskStores(t *testing.T) (plain, disk *Store) {
	var db, readDB = newTestDB(t)

	var blobs, err = bytestore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(blobs.Close)

	return NewStore(db, readDB, nil), NewStore(db, readDB, blobs)
}

func TestSaveMessageWritesThroughToByteStore(t *testing.T) {
	var _, disk = newDiskStores(t)

	var m = newTestMessage(t, "proc-1", "msg-1", "asgn-1", "payload", 100)
	saveTestMessage(t, disk, m)

	// The payload is visible in the blob tier immediately after save returns.
	assert.True(t, disk.blobs.Exists(messageBinaryID(m)))
}

func TestGetMessagesDiskAndDBAgree(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	for _, ts := range []int64{100, 200, 300} {
		var id = "msg-" + string(rune('a'+ts/100))
		saveTestMessage(t, disk, newTestMessage(t, "proc-1", id, "asgn-"+id, "data of "+id, ts))
	}

	var fromDisk, err = disk.GetMessages(ctx, "proc-1", nil, nil, nil)
	require.NoError(t, err)
	fromDB, err := plain.GetMessages(ctx, "proc-1", nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, fromDisk.Edges, 3)
	require.Len(t, fromDB.Edges, 3)

	for i := range fromDisk.Edges {
		// Byte-identical payloads regardless of which tier served them.
		assert.Equal(t, fromDB.Edges[i].Node.Bundle(), fromDisk.Edges[i].Node.Bundle())
		assert.Equal(t, fromDB.Edges[i].Node.MessageID(), fromDisk.Edges[i].Node.MessageID())
		assert.Equal(t, fromDB.Edges[i].Node.Timestamp(), fromDisk.Edges[i].Node.Timestamp())
		assert.Equal(t, fromDB.Edges[i].Cursor, fromDisk.Edges[i].Cursor)
	}
}

func TestGetMessagesFallsBackOnTierMiss(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	// Rows saved without the disk tier have no blob copies: every disk read
	// of them is a tier miss served by the relational fallback.
	saveTestMessage(t, plain, newTestMessage(t, "proc-1", "msg-1", "asgn-1", "a", 100))
	saveTestMessage(t, plain, newTestMessage(t, "proc-1", "msg-2", "asgn-2", "b", 200))

	var page, err = disk.GetMessages(ctx, "proc-1", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Edges, 2)
	assert.Equal(t, "msg-1", page.Edges[0].Node.MessageID())
	assert.Equal(t, "msg-2", page.Edges[1].Node.MessageID())
	assert.False(t, page.Edges[0].Node.IsAssignment())
}

func TestSyncByteStore(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	for _, ts := range []int64{100, 200, 300, 400} {
		var id = "msg-" + string(rune('a'+ts/100))
		saveTestMessage(t, plain, newTestMessage(t, "proc-1", id, "asgn-"+id, "data", ts))
	}

	var synced, err = disk.SyncByteStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), synced)

	// Every row is now mirrored.
	var count int64
	count, err = disk.MessageCount(ctx)
	require.NoError(t, err)
	for off := int64(0); off < count; off++ {
		var m, err = disk.MessageByOffsetFromEnd(ctx, off)
		require.NoError(t, err)
		assert.True(t, disk.blobs.Exists(m.BinaryID()))
	}

	// A second run finds the newest row synced and writes nothing.
	synced, err = disk.SyncByteStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), synced)
}

func TestSyncStopsAtFirstSyncedRow(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	for _, ts := range []int64{100, 200, 300} {
		var id = "msg-" + string(rune('a'+ts/100))
		saveTestMessage(t, plain, newTestMessage(t, "proc-1", id, "asgn-"+id, "data", ts))
	}

	// Mirror only the newest row, as if a prior run had fully synced and
	// exactly one write-through landed since.
	var newest, err = disk.MessageByOffsetFromEnd(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, disk.blobs.SaveBinary(newest.BinaryID(), newest.Bundle))

	// The scan stops at the newest row: under the monotonic backfill
	// invariant, a synced row implies all older rows are synced.
	synced, err := disk.SyncByteStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), synced)
}

func TestMigrateRange(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	for _, ts := range []int64{100, 200, 300, 400, 500} {
		var id = "msg-" + string(rune('a'+ts/100))
		saveTestMessage(t, plain, newTestMessage(t, "proc-1", id, "asgn-"+id, "data of "+id, ts))
	}

	var processed, err = disk.MigrateToDisk(ctx, "0", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), processed)

	// Each blob copy is bit-identical to its relational payload.
	var batch []MigrationMessage
	batch, err = disk.AllMessages(ctx, 0, 5)
	require.NoError(t, err)
	for _, m := range batch {
		var binaries = disk.blobs.ReadBinaries([]bytestore.BinaryID{m.BinaryID()})
		require.Contains(t, binaries, m.BinaryID())
		assert.Equal(t, m.Bundle, binaries[m.BinaryID()])
	}

	// Re-running the same range overwrites with identical bytes.
	processed, err = disk.MigrateToDisk(ctx, "0", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), processed)
}

func TestMigrateRangeBounds(t *testing.T) {
	var plain, disk = newDiskStores(t)
	var ctx = context.Background()

	for _, ts := range []int64{100, 200, 300, 400, 500} {
		var id = "msg-" + string(rune('a'+ts/100))
		saveTestMessage(t, plain, newTestMessage(t, "proc-1", id, "asgn-"+id, "data", ts))
	}

	// |to| is clamped to the true row count.
	var processed, err = disk.MigrateToDisk(ctx, "3-100", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processed)

	processed, err = disk.MigrateToDisk(ctx, "1-3", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processed)

	_, err = disk.MigrateToDisk(ctx, "bogus", 1)
	assert.Equal(t, IntError, ErrorKind(err))
}

func TestMigrationRequiresByteStore(t *testing.T) {
	var plain, _ = newDiskStores(t)
	var ctx = context.Background()

	var _, err = plain.SyncByteStore(ctx)
	assert.Equal(t, DatabaseError, ErrorKind(err))
	_, err = plain.MigrateToDisk(ctx, "0", 1)
	assert.Equal(t, DatabaseError, ErrorKind(err))
}

func TestParseRange(t *testing.T) {
	var from, to, err = ParseRange("5")
	require.NoError(t, err)
	assert.Equal(t, int64(5), from)
	assert.Nil(t, to)

	from, to, err = ParseRange("5-10")
	require.NoError(t, err)
	assert.Equal(t, int64(5), from)
	require.NotNil(t, to)
	assert.Equal(t, int64(10), *to)

	_, _, err = ParseRange("x")
	assert.Equal(t, IntError, ErrorKind(err))
	_, _, err = ParseRange("5-x")
	assert.Equal(t, IntError, ErrorKind(err))
}
