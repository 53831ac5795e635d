package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/dbx"
	"github.com/sqweebloid/seedbank/internal/timex"
)

// SQLiteStore implements the ledger over a SQLite database. Mutations
// follow single-writer discipline: creation and status updates hold the
// store's lock for the duration of the change, keeping the identifier
// index consistent; reads go straight to the last-committed snapshot.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	hexLen int
	now    func() time.Time
	salt   func() string
}

// NewSQLiteStore returns a store over db. hexLen is the identifier
// length in hex characters; 0 means DefaultIDHexLen.
func NewSQLiteStore(db *sql.DB, hexLen int) *SQLiteStore {
	if hexLen <= 0 {
		hexLen = DefaultIDHexLen
	}
	return &SQLiteStore{
		db:     db,
		hexLen: hexLen,
		now:    time.Now,
		salt:   uuid.NewString,
	}
}

// CreateRecord atomically creates a record with a fresh identifier. It
// fails with a validation error if the file list is empty or sourcePath
// is unreadable. A partially formed record never reaches the index: the
// record row and its file rows commit in one transaction.
func (s *SQLiteStore) CreateRecord(ctx context.Context, sourcePath, description string, files []FileEntry) (*ArchiveRecord, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: file list is empty", common.ErrValidation)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("%w: source path %s: %v", common.ErrValidation, sourcePath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &ArchiveRecord{
		SourcePath:   sourcePath,
		Description:  description,
		CreatedAt:    s.now().UTC(),
		Files:        files,
		UploadStatus: UploadNone,
	}

	// A fresh salt resolves the (unlikely) truncated-digest collision.
	for attempt := 0; ; attempt++ {
		rec.ID = newIdentifier(files, rec.CreatedAt, s.salt(), s.hexLen)
		err := s.insertRecord(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if attempt >= 3 || !isUniqueViolation(err) {
			return nil, fmt.Errorf("create record: %w", err)
		}
	}
}

func (s *SQLiteStore) insertRecord(ctx context.Context, rec *ArchiveRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO archives (id, source_path, description, created_at, upload_status, retrieval_status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.SourcePath, rec.Description, timex.Stamp(rec.CreatedAt),
			string(rec.UploadStatus), string(rec.RetrievalStatus))
		if err != nil {
			return err
		}
		for i, f := range rec.Files {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO archive_files (archive_id, seq, rel_path, size) VALUES (?, ?, ?, ?)`,
				rec.ID, i, f.RelPath, f.Size)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures by message; the
	// identifier column is the only unique index we insert into here.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// ResolveReference resolves a non-empty identifier prefix. Exactly one
// match returns that record; several matches return an
// AmbiguousReferenceError listing all candidates; none returns a
// not-found error.
func (s *SQLiteStore) ResolveReference(ctx context.Context, prefix string) (*ArchiveRecord, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: reference prefix is empty", common.ErrValidation)
	}
	if !validHexPrefix(prefix) {
		return nil, fmt.Errorf("reference %q: %w", prefix, common.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM archives WHERE id LIKE ? || '%' ORDER BY id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("resolve reference: %w", err)
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("reference %q: %w", prefix, common.ErrNotFound)
	case 1:
		return s.GetRecord(ctx, candidates[0])
	default:
		return nil, &common.AmbiguousReferenceError{Prefix: prefix, Candidates: candidates}
	}
}

// GetRecord loads a record and its file manifest by exact identifier.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*ArchiveRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, description, created_at, checksum, upload_status, retrieval_status
		 FROM archives WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archive %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load archive %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_path, size FROM archive_files WHERE archive_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load archive files %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f FileEntry
		if err := rows.Scan(&f.RelPath, &f.Size); err != nil {
			return nil, err
		}
		rec.Files = append(rec.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns records most-recent-first; records sharing a
// timestamp order by identifier. limit <= 0 means no limit. Manifests
// are not loaded; use GetRecord for the full record.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]*ArchiveRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, description, created_at, checksum, upload_status, retrieval_status
		 FROM archives ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var result []*ArchiveRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ArchiveRecord, error) {
	rec := &ArchiveRecord{}
	var createdAt, uploadStatus, retrievalStatus string
	if err := row.Scan(&rec.ID, &rec.SourcePath, &rec.Description, &createdAt,
		&rec.Checksum, &uploadStatus, &retrievalStatus); err != nil {
		return nil, err
	}
	t, err := timex.ParseStamp(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t
	rec.UploadStatus = UploadStatus(uploadStatus)
	rec.RetrievalStatus = RetrievalStatus(retrievalStatus)
	return rec, nil
}

// UpdateUploadStatus records the upload status of an archive. Applying
// an already-recorded status is a no-op; replacing a terminal status
// with anything else is a state regression.
func (s *SQLiteStore) UpdateUploadStatus(ctx context.Context, id string, status UploadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentUploadStatus(ctx, id)
	if err != nil {
		return err
	}
	if current == status {
		return nil
	}
	if current.Terminal() {
		return fmt.Errorf("archive %s upload status %s -> %s: %w", id, current, status, common.ErrStateRegression)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE archives SET upload_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return nil
}

// UpdateRetrievalStatus records the retrieval status of an archive.
// Reapplying the current status is a no-op. A fresh PENDING may follow
// a terminal status (a new retrieval request supersedes an expired or
// failed one); any other change off a terminal status is a regression.
func (s *SQLiteStore) UpdateRetrievalStatus(ctx context.Context, id string, status RetrievalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT retrieval_status FROM archives WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("archive %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read retrieval status: %w", err)
	}
	current := RetrievalStatus(raw)

	if current == status {
		return nil
	}
	if current.Terminal() && status != RetrievalPending {
		return fmt.Errorf("archive %s retrieval status %s -> %s: %w", id, current, status, common.ErrStateRegression)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE archives SET retrieval_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update retrieval status: %w", err)
	}
	return nil
}

// SetChecksum records the payload digest once it is known. The checksum
// is append-only: setting a different value over a recorded one fails.
func (s *SQLiteStore) SetChecksum(ctx context.Context, id, checksum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err := s.db.QueryRowContext(ctx, `SELECT checksum FROM archives WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("archive %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read checksum: %w", err)
	}
	if current == checksum {
		return nil
	}
	if current != "" {
		return fmt.Errorf("%w: archive %s already has checksum %s", common.ErrValidation, id, current)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE archives SET checksum = ? WHERE id = ?`, checksum, id)
	if err != nil {
		return fmt.Errorf("set checksum: %w", err)
	}
	return nil
}

func (s *SQLiteStore) currentUploadStatus(ctx context.Context, id string) (UploadStatus, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT upload_status FROM archives WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("archive %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read upload status: %w", err)
	}
	return UploadStatus(raw), nil
}
