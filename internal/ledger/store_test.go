package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/timex"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedArchive(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO archives (id, source_path, created_at) VALUES (?, '/tmp/x', ?)`,
		id, timex.Stamp(time.Now()))
	require.NoError(t, err)
}

func testSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600))
	return dir
}

func TestCreateRecord(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	dir := testSourceDir(t)

	files := []FileEntry{
		{RelPath: "a.txt", Size: 5},
		{RelPath: "sub/b.bin", Size: 1 << 20},
	}

	rec, err := s.CreateRecord(ctx, dir, "notes", files)
	require.NoError(t, err)
	assert.Len(t, rec.ID, DefaultIDHexLen)
	assert.Equal(t, UploadNone, rec.UploadStatus)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, dir, got.SourcePath)
	assert.Equal(t, "notes", got.Description)
	assert.Equal(t, files, got.Files)
	assert.Equal(t, int64(5+(1<<20)), got.TotalSize())
}

func TestCreateRecord_Validation(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, testSourceDir(t), "", nil)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = s.CreateRecord(ctx, "/no/such/path", "", []FileEntry{{RelPath: "a", Size: 1}})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestCreateRecord_RetriesIdentifierCollision(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	dir := testSourceDir(t)

	// Freeze time and script the salt so the first identifier collides
	// with an existing row and the retry produces a fresh one.
	s.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	salts := []string{"dup", "dup", "fresh"}
	s.salt = func() string {
		v := salts[0]
		salts = salts[1:]
		return v
	}

	files := []FileEntry{{RelPath: "a.txt", Size: 5}}

	first, err := s.CreateRecord(ctx, dir, "", files)
	require.NoError(t, err)

	second, err := s.CreateRecord(ctx, dir, "", files)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestResolveReference(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()

	seedArchive(t, db, "a1b2c3d4e5f60718")
	seedArchive(t, db, "a1d4e5f6a7b80920")
	seedArchive(t, db, "ff00112233445566")

	t.Run("unique prefix", func(t *testing.T) {
		rec, err := s.ResolveReference(ctx, "a1b")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4e5f60718", rec.ID)
	})

	t.Run("full identifier", func(t *testing.T) {
		rec, err := s.ResolveReference(ctx, "ff00112233445566")
		require.NoError(t, err)
		assert.Equal(t, "ff00112233445566", rec.ID)
	})

	t.Run("ambiguous prefix lists candidates", func(t *testing.T) {
		_, err := s.ResolveReference(ctx, "a1")
		var ambiguous *common.AmbiguousReferenceError
		require.ErrorAs(t, err, &ambiguous)
		assert.Equal(t, "a1", ambiguous.Prefix)
		assert.Equal(t, []string{"a1b2c3d4e5f60718", "a1d4e5f6a7b80920"}, ambiguous.Candidates)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := s.ResolveReference(ctx, "0000")
		require.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := s.ResolveReference(ctx, "")
		require.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("non-hex prefix", func(t *testing.T) {
		_, err := s.ResolveReference(ctx, "xyz")
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestListRecords_Order(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()

	at := func(h int) string {
		return timex.Stamp(time.Date(2026, 8, 1, h, 0, 0, 0, time.UTC))
	}
	for _, row := range []struct{ id, created string }{
		{"bbbb000000000000", at(10)},
		{"aaaa000000000000", at(12)},
		{"cccc000000000000", at(12)},
	} {
		_, err := db.Exec(`INSERT INTO archives (id, source_path, created_at) VALUES (?, '/tmp/x', ?)`,
			row.id, row.created)
		require.NoError(t, err)
	}

	records, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Most recent first, ties broken by identifier.
	assert.Equal(t, "aaaa000000000000", records[0].ID)
	assert.Equal(t, "cccc000000000000", records[1].ID)
	assert.Equal(t, "bbbb000000000000", records[2].ID)

	limited, err := s.ListRecords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListRecords_SubSecondOrder(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	dir := testSourceDir(t)
	files := []FileEntry{{RelPath: "a.txt", Size: 5}}

	// 500ms and 510ms fractions: a variable-width rendering would trim
	// trailing zeros and sort ".5Z" after ".51Z" textually, inverting
	// the listing.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	older, err := s.CreateRecord(ctx, dir, "", files)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(510 * time.Millisecond) }
	newer, err := s.CreateRecord(ctx, dir, "", files)
	require.NoError(t, err)

	records, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
}

func TestUpdateUploadStatus(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	seedArchive(t, db, "aaaa000000000000")

	require.NoError(t, s.UpdateUploadStatus(ctx, "aaaa000000000000", UploadInProgress))
	require.NoError(t, s.UpdateUploadStatus(ctx, "aaaa000000000000", UploadCompleted))

	// Reapplying the recorded status is a no-op.
	require.NoError(t, s.UpdateUploadStatus(ctx, "aaaa000000000000", UploadCompleted))

	// Leaving a terminal status is a regression.
	err := s.UpdateUploadStatus(ctx, "aaaa000000000000", UploadInProgress)
	require.ErrorIs(t, err, common.ErrStateRegression)

	err = s.UpdateUploadStatus(ctx, "missing", UploadPending)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateRetrievalStatus(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	seedArchive(t, db, "aaaa000000000000")
	id := "aaaa000000000000"

	require.NoError(t, s.UpdateRetrievalStatus(ctx, id, RetrievalPending))
	require.NoError(t, s.UpdateRetrievalStatus(ctx, id, RetrievalInProgress))
	require.NoError(t, s.UpdateRetrievalStatus(ctx, id, RetrievalExpired))

	// A fresh request may supersede an expired one.
	require.NoError(t, s.UpdateRetrievalStatus(ctx, id, RetrievalPending))

	require.NoError(t, s.UpdateRetrievalStatus(ctx, id, RetrievalFailed))
	err := s.UpdateRetrievalStatus(ctx, id, RetrievalReady)
	require.ErrorIs(t, err, common.ErrStateRegression)
}

func TestSetChecksum_AppendOnly(t *testing.T) {
	db := setupDB(t)
	s := NewSQLiteStore(db, 0)
	ctx := context.Background()
	seedArchive(t, db, "aaaa000000000000")
	id := "aaaa000000000000"

	require.NoError(t, s.SetChecksum(ctx, id, "deadbeef"))
	require.NoError(t, s.SetChecksum(ctx, id, "deadbeef"))

	err := s.SetChecksum(ctx, id, "cafebabe")
	require.ErrorIs(t, err, common.ErrValidation)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", rec.Checksum)
}
