// Package snapshot persists the state of a scanned directory: its root digest
// and the digest of every file, keyed by POSIX relative path.
package snapshot

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"merkle-diff/internal/hash"
	"merkle-diff/internal/tree"
)

// ErrRootMismatch is returned by Verify when the files of a snapshot do not
// produce its recorded root.
var ErrRootMismatch = errors.New("root does not match files")

// Snapshot is one point-in-time directory state.
type Snapshot struct {
	Algorithm hash.Algorithm
	Root      hash.Digest
	Files     map[string]hash.Digest

	tree *tree.MerkleTree
}

// New captures the state committed to mt.
func New(mt *tree.MerkleTree) *Snapshot {
	return &Snapshot{
		Algorithm: mt.Algorithm(),
		Root:      mt.Root(),
		Files:     mt.Files(),
		tree:      mt,
	}
}

// Tree returns the Merkle tree re-derived from Files in sorted path order.
func (s *Snapshot) Tree() (*tree.MerkleTree, error) {
	if s.tree != nil {
		return s.tree, nil
	}
	mt, err := tree.Build(s.Files, s.Algorithm)
	if err != nil {
		return nil, err
	}
	s.tree = mt
	return mt, nil
}

// Verify rebuilds the tree from Files and checks it against Root.
func (s *Snapshot) Verify() error {
	mt, err := s.Tree()
	if err != nil {
		return err
	}
	if got := mt.Root(); got != s.Root {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrRootMismatch, s.Root, got)
	}
	return nil
}

// ValidatePath reports whether p is a clean, relative, slash-separated UTF-8
// path of the kind the walker produces.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return errors.New("empty path")
	case !utf8.ValidString(p):
		return fmt.Errorf("path %q is not valid UTF-8", p)
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("path %q is absolute", p)
	case path.Clean(p) != p || p == ".":
		return fmt.Errorf("path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Errorf("path %q escapes the root", p)
	}
	return nil
}
