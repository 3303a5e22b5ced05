package tree

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"merkle-diff/internal/hash"
)

var (
	// ErrDuplicatePath is returned when a path is added to a Builder twice.
	ErrDuplicatePath = errors.New("duplicate path")
	// ErrUnknownPath is returned when a path has no leaf in a MerkleTree.
	ErrUnknownPath = errors.New("path not in tree")
)

const leafTableDegree = 32

// Builder collects files in any order and commits them to a tree in sorted
// path order, so the resulting root never depends on the order in which
// files were discovered or digested.
type Builder struct {
	alg   hash.Algorithm
	table *btree.BTreeG[Leaf]
}

// NewBuilder validates alg and returns an empty Builder.
func NewBuilder(alg hash.Algorithm) (*Builder, error) {
	if err := alg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		alg:   alg,
		table: btree.NewG(leafTableDegree, lessLeaf),
	}, nil
}

// Add records the digest of path.
func (b *Builder) Add(path string, d hash.Digest) error {
	if _, exists := b.table.Get(Leaf{Path: path}); exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, path)
	}
	b.table.ReplaceOrInsert(Leaf{Path: path, Digest: d})
	return nil
}

func (b *Builder) Len() int { return b.table.Len() }

// Build appends every recorded leaf in ascending path order.
func (b *Builder) Build() (*MerkleTree, error) {
	t, err := New(b.alg)
	if err != nil {
		return nil, err
	}

	mt := &MerkleTree{
		Tree:   t,
		leaves: make([]Leaf, 0, b.table.Len()),
		index:  make(map[string]uint64, b.table.Len()),
	}
	b.table.Ascend(func(leaf Leaf) bool {
		mt.index[leaf.Path] = t.Append(leaf.Payload())
		mt.leaves = append(mt.leaves, leaf)
		return true
	})
	return mt, nil
}

// Build creates a MerkleTree from a path -> digest mapping.
func Build(files map[string]hash.Digest, alg hash.Algorithm) (*MerkleTree, error) {
	b, err := NewBuilder(alg)
	if err != nil {
		return nil, err
	}
	for path, d := range files {
		if err := b.Add(path, d); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// Index returns the leaf index of path.
func (mt *MerkleTree) Index(path string) (uint64, bool) {
	i, ok := mt.index[path]
	return i, ok
}

// Leaf returns the leaf at index i.
func (mt *MerkleTree) Leaf(i uint64) (Leaf, bool) {
	if i >= uint64(len(mt.leaves)) {
		return Leaf{}, false
	}
	return mt.leaves[i], true
}

// Leaves returns the leaves in tree order.
func (mt *MerkleTree) Leaves() []Leaf {
	out := make([]Leaf, len(mt.leaves))
	copy(out, mt.leaves)
	return out
}

// Files returns the path -> digest mapping committed to the tree.
func (mt *MerkleTree) Files() map[string]hash.Digest {
	files := make(map[string]hash.Digest, len(mt.leaves))
	for _, leaf := range mt.leaves {
		files[leaf.Path] = leaf.Digest
	}
	return files
}

// Prove returns the inclusion proof of path against the current root along
// with the leaf hash the proof authenticates.
func (mt *MerkleTree) Prove(path string) (*Proof, hash.Digest, error) {
	i, ok := mt.index[path]
	if !ok {
		return nil, hash.Digest{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	p, err := mt.ProveInclusion(i, mt.Size())
	if err != nil {
		return nil, hash.Digest{}, err
	}
	leafHash, err := mt.LeafHash(i)
	if err != nil {
		return nil, hash.Digest{}, err
	}
	return p, leafHash, nil
}
