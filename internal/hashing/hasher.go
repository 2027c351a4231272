// Package hashing provides SHA-256 content digests over strings, files, and
// directory trees. The folder digest is the identity of a filesystem tree:
// two trees with the same relative paths and file contents hash equal, and
// any byte of difference changes the digest.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const chunkSize = 64 * 1024

// HashString returns the SHA-256 hex digest of the UTF-8 bytes of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashFile returns the SHA-256 hex digest of the file at path, read in
// 64 KiB chunks.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFolder returns a SHA-256 digest covering every regular file under
// root. Files are visited in lexicographic order of their POSIX-style
// relative paths, and each contributes "<rel_path>:<hex_digest>\n" to a
// running digest.
func HashFolder(root string) (string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}

	rels := make(map[string]string, len(files))
	ordered := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return "", err
		}
		rel = filepath.ToSlash(rel)
		rels[rel] = f
		ordered = append(ordered, rel)
	}
	sort.Strings(ordered)

	h := sha256.New()
	for _, rel := range ordered {
		digest, err := HashFile(rels[rel])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s:%s\n", rel, digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
