// Package export promotes local pipeline artifacts to S3-compatible
// object storage.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// File is a local file selected for upload. Key is the object key
// relative to the source directory, always slash-separated.
type File struct {
	Path string
	Key  string
	Size int64
}

// Filter controls which files under the source directory are collected.
type Filter struct {
	// Includes restricts collection to matching keys when non-empty.
	Includes []string
	// Excludes removes matching keys.
	Excludes []string
	// MaxSizeBytes skips files larger than this when positive.
	MaxSizeBytes int64
}

// matchAny reports whether any glob pattern matches the key.
func matchAny(patterns []string, key string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, key); ok {
			return true
		}
		// Also match against the base name so patterns like *.csv
		// apply to nested files.
		if ok, _ := path.Match(pat, path.Base(key)); ok {
			return true
		}
	}
	return false
}

func isHidden(key string) bool {
	for _, part := range strings.Split(key, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// shouldInclude applies hidden-file and include/exclude rules. Hidden
// files are skipped unless an include pattern names them explicitly.
func shouldInclude(key string, f Filter) bool {
	explicit := len(f.Includes) > 0 && matchAny(f.Includes, key)
	if isHidden(key) && !explicit {
		return false
	}
	if len(f.Includes) > 0 && !explicit {
		return false
	}
	if matchAny(f.Excludes, key) {
		return false
	}
	return true
}

// Collect walks the source directory and returns the files to upload,
// sorted by key (WalkDir visits lexically).
func Collect(source string, f Filter) ([]File, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("source directory not found: %s", source)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", source)
	}

	var files []File
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !shouldInclude(key, f) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if f.MaxSizeBytes > 0 && fi.Size() > f.MaxSizeBytes {
			return nil
		}
		files = append(files, File{Path: p, Key: key, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", source, err)
	}
	return files, nil
}

// SHA256 computes the hex digest of a file in streaming fashion.
func SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
