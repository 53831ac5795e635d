package blobstore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqweebloid/seedbank/internal/common"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s, dir
}

func readBlob(t *testing.T, s *Store, id string) []byte {
	t.Helper()
	f, size, err := s.Open(id)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, size, int64(len(data)))
	return data
}

func TestStageAndOpen(t *testing.T) {
	s, _ := setupStore(t)

	n, err := s.Stage("arch1", strings.NewReader("payload bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	assert.Equal(t, []byte("payload bytes"), readBlob(t, s, "arch1"))
}

func TestStage_ReplacesPendingCopy(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Stage("arch1", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Stage("arch1", strings.NewReader("second"))
	require.NoError(t, err)

	assert.Equal(t, []byte("second"), readBlob(t, s, "arch1"))
}

func TestStage_LeavesNoTempFiles(t *testing.T) {
	s, dir := setupStore(t)

	_, err := s.Stage("arch1", bytes.NewReader(make([]byte, 1<<16)))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "pending"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "arch1", entries[0].Name())
}

func TestConfirm(t *testing.T) {
	s, dir := setupStore(t)

	_, err := s.Stage("arch1", strings.NewReader("data"))
	require.NoError(t, err)
	require.NoError(t, s.Confirm("arch1"))

	_, err = os.Stat(filepath.Join(dir, "pending", "arch1"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "confirmed", "arch1"))
	assert.NoError(t, err)

	// Open still finds the blob after confirmation.
	assert.Equal(t, []byte("data"), readBlob(t, s, "arch1"))

	// Confirming again is a no-op.
	require.NoError(t, s.Confirm("arch1"))
}

func TestConfirm_MissingBlob(t *testing.T) {
	s, _ := setupStore(t)
	err := s.Confirm("nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestOpen_MissingBlob(t *testing.T) {
	s, _ := setupStore(t)
	_, _, err := s.Open("nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDiscard(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Stage("arch1", strings.NewReader("data"))
	require.NoError(t, err)
	require.NoError(t, s.Discard("arch1"))

	_, _, err = s.Open("arch1")
	require.ErrorIs(t, err, common.ErrNotFound)

	// Discarding a missing blob is fine.
	require.NoError(t, s.Discard("arch1"))
}
