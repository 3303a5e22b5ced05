package compare

import (
	"errors"
	"fmt"

	"merkle-diff/internal/hash"
	"merkle-diff/internal/tree"
)

var (
	// ErrAlgorithmMismatch is returned when two trees were built with
	// different hash algorithms and so cannot be compared leaf by leaf.
	ErrAlgorithmMismatch = errors.New("trees use different hash algorithms")
	// ErrNotUnchanged is returned when certifying a path whose digest differs
	// between the two trees.
	ErrNotUnchanged = errors.New("path changed between trees")
)

// Certificate proves that an unchanged file is committed, with the same
// content digest, to both the old and the new tree.
type Certificate struct {
	Path     string
	Digest   hash.Digest
	OldIndex uint64
	NewIndex uint64
	OldProof *tree.Proof
	NewProof *tree.Proof
}

// SamePosition reports whether the leaf sits at the same index in both trees.
// Leaves keep their position only while no path sorting before them was
// added or removed.
func (c *Certificate) SamePosition() bool {
	return c.OldIndex == c.NewIndex
}

// Verify checks both inclusion proofs against the given roots.
func (c *Certificate) Verify(oldRoot, newRoot hash.Digest) bool {
	if c.OldProof == nil || c.NewProof == nil {
		return false
	}
	if c.OldProof.Index != c.OldIndex || c.NewProof.Index != c.NewIndex {
		return false
	}
	if c.OldProof.Algorithm.Validate() != nil || c.NewProof.Algorithm.Validate() != nil {
		return false
	}
	payload := tree.EncodeLeaf(c.Path, c.Digest)
	return c.OldProof.Verify(tree.HashLeaf(c.OldProof.Algorithm, payload), oldRoot) &&
		c.NewProof.Verify(tree.HashLeaf(c.NewProof.Algorithm, payload), newRoot)
}

// Certify issues a Certificate for each path, which must be present with the
// same digest in both trees.
func Certify(oldTree, newTree *tree.MerkleTree, paths []string) ([]Certificate, error) {
	if oldTree.Algorithm() != newTree.Algorithm() {
		return nil, fmt.Errorf("%w: %s and %s", ErrAlgorithmMismatch, oldTree.Algorithm(), newTree.Algorithm())
	}

	certs := make([]Certificate, 0, len(paths))
	for _, path := range paths {
		oldIndex, ok := oldTree.Index(path)
		if !ok {
			return nil, fmt.Errorf("%w: %q in old tree", tree.ErrUnknownPath, path)
		}
		newIndex, ok := newTree.Index(path)
		if !ok {
			return nil, fmt.Errorf("%w: %q in new tree", tree.ErrUnknownPath, path)
		}
		oldLeaf, _ := oldTree.Leaf(oldIndex)
		newLeaf, _ := newTree.Leaf(newIndex)
		if oldLeaf.Digest != newLeaf.Digest {
			return nil, fmt.Errorf("%w: %q", ErrNotUnchanged, path)
		}

		oldProof, err := oldTree.ProveInclusion(oldIndex, oldTree.Size())
		if err != nil {
			return nil, fmt.Errorf("failed to prove %q in old tree: %w", path, err)
		}
		newProof, err := newTree.ProveInclusion(newIndex, newTree.Size())
		if err != nil {
			return nil, fmt.Errorf("failed to prove %q in new tree: %w", path, err)
		}

		certs = append(certs, Certificate{
			Path:     path,
			Digest:   newLeaf.Digest,
			OldIndex: oldIndex,
			NewIndex: newIndex,
			OldProof: oldProof,
			NewProof: newProof,
		})
	}
	return certs, nil
}
