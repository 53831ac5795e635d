// Package blobstore keeps archive payloads on local disk, addressed by
// archive identifier. A payload is staged under pending/ while its
// upload is in flight and moved to confirmed/ once the remote side has
// acknowledged it, so a restarted process can tell the two apart.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sqweebloid/seedbank/internal/common"
	"github.com/sqweebloid/seedbank/internal/filex"
)

type Store struct {
	root string
}

// New opens (creating if needed) a blob store rooted at dir.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"pending", "confirmed"} {
		if _, err := filex.EnsureDir(filepath.Join(dir, sub)); err != nil {
			return nil, err
		}
	}
	return &Store{root: dir}, nil
}

func (s *Store) pendingPath(id string) string   { return filepath.Join(s.root, "pending", id) }
func (s *Store) confirmedPath(id string) string { return filepath.Join(s.root, "confirmed", id) }

// Stage writes a payload under pending/<id>, replacing any previous
// pending copy. The write goes through a temp file and a rename so a
// crash never leaves a half-written blob under the final name.
func (s *Store) Stage(id string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, "pending"), id+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("stage %s: %w", id, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("stage %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("stage %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.pendingPath(id)); err != nil {
		return 0, fmt.Errorf("stage %s: %w", id, err)
	}
	return n, nil
}

// Open returns a read handle and size for the payload of id, looking at
// pending/ first and then confirmed/. The caller closes the file.
func (s *Store) Open(id string) (*os.File, int64, error) {
	for _, path := range []string{s.pendingPath(id), s.confirmedPath(id)} {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("open blob %s: %w", id, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("stat blob %s: %w", id, err)
		}
		return f, info.Size(), nil
	}
	return nil, 0, fmt.Errorf("blob %s: %w", id, common.ErrNotFound)
}

// Confirm moves a pending payload to confirmed/. Confirming an already
// confirmed payload is a no-op.
func (s *Store) Confirm(id string) error {
	err := os.Rename(s.pendingPath(id), s.confirmedPath(id))
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(s.confirmedPath(id)); statErr == nil {
			return nil
		}
		return fmt.Errorf("confirm blob %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("confirm blob %s: %w", id, err)
	}
	return nil
}

// Discard removes the payload of id from both areas. Missing files are
// not an error.
func (s *Store) Discard(id string) error {
	for _, path := range []string{s.pendingPath(id), s.confirmedPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("discard blob %s: %w", id, err)
		}
	}
	return nil
}
