// Package filex holds small filesystem helpers used by front ends:
// directory creation and building the ordered file manifest an archive
// record is created from.
package filex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileEntry is one manifest line: a path relative to the archive root
// plus the file's size in bytes.
type FileEntry struct {
	RelPath string
	Size    int64
}

// EnsureDir creates dir (and parents) if missing and returns its path.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// ListFiles walks root and returns its regular files as an ordered
// manifest, paths relative to root, sorted lexicographically.
func ListFiles(root string) ([]FileEntry, error) {
	var entries []FileEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{RelPath: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}
