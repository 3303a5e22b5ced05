package tree

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"

	"merkle-diff/internal/hash"
)

// ErrOutOfRange is returned when a proof or root is requested for a leaf
// index or tree size the tree has not reached.
var ErrOutOfRange = errors.New("out of range")

// Tree is an append-only Merkle tree following RFC 6962:
//  1. Each leaf payload is hashed as H(0x00 || payload)
//  2. Two children are combined as H(0x01 || left || right)
//  3. Leaves are accumulated left to right as a compact range of perfect
//     subtrees (a Merkle Mountain Range); the root folds those peaks from
//     right to left
//
// Every perfect subtree is frozen once complete and kept in memory, so roots
// and inclusion proofs can be produced for any earlier size. A Tree is not
// safe for concurrent use.
type Tree struct {
	alg    hash.Algorithm
	hasher *rfc6962.Hasher
	ranges *compact.RangeFactory
	rng    *compact.Range
	nodes  map[compact.NodeID][]byte
}

// New returns an empty tree using alg for both leaf and interior hashing.
func New(alg hash.Algorithm) (*Tree, error) {
	if err := alg.Validate(); err != nil {
		return nil, err
	}
	hasher := rfc6962.New(alg.CryptoHash())
	ranges := &compact.RangeFactory{Hash: hasher.HashChildren}
	return &Tree{
		alg:    alg,
		hasher: hasher,
		ranges: ranges,
		rng:    ranges.NewEmptyRange(0),
		nodes:  make(map[compact.NodeID][]byte),
	}, nil
}

func (t *Tree) Algorithm() hash.Algorithm { return t.alg }

// Size returns the number of leaves appended so far.
func (t *Tree) Size() uint64 { return t.rng.End() }

// HashLeaf returns the leaf hash the tree stores for payload.
func (t *Tree) HashLeaf(payload []byte) hash.Digest {
	return mustDigest(t.hasher.HashLeaf(payload))
}

// Append adds payload as the next leaf and returns its index.
func (t *Tree) Append(payload []byte) uint64 {
	index := t.rng.End()
	if err := t.rng.Append(t.hasher.HashLeaf(payload), t.freeze); err != nil {
		// A range that starts at zero always has the hashes a merge needs.
		panic(fmt.Sprintf("tree: append leaf %d: %v", index, err))
	}
	return index
}

func (t *Tree) freeze(id compact.NodeID, h []byte) {
	t.nodes[id] = h
}

// Root returns the root digest over all leaves appended so far.
func (t *Tree) Root() hash.Digest {
	root, err := t.RootAt(t.Size())
	if err != nil {
		panic(fmt.Sprintf("tree: root at current size: %v", err))
	}
	return root
}

// RootAt returns the root the tree had when it held size leaves.
func (t *Tree) RootAt(size uint64) (hash.Digest, error) {
	if size > t.Size() {
		return hash.Digest{}, fmt.Errorf("%w: size %d exceeds tree size %d", ErrOutOfRange, size, t.Size())
	}
	if size == 0 {
		return mustDigest(t.hasher.EmptyRoot()), nil
	}

	ids := compact.RangeNodes(0, size, nil)
	hashes, err := t.lookup(ids)
	if err != nil {
		return hash.Digest{}, err
	}
	rng, err := t.ranges.NewRange(0, size, hashes)
	if err != nil {
		return hash.Digest{}, fmt.Errorf("failed to rebuild range at size %d: %w", size, err)
	}
	root, err := rng.GetRootHash(nil)
	if err != nil {
		return hash.Digest{}, fmt.Errorf("failed to compute root at size %d: %w", size, err)
	}
	return mustDigest(root), nil
}

// LeafHash returns the stored hash of the leaf at index.
func (t *Tree) LeafHash(index uint64) (hash.Digest, error) {
	if index >= t.Size() {
		return hash.Digest{}, fmt.Errorf("%w: leaf %d, tree size %d", ErrOutOfRange, index, t.Size())
	}
	hashes, err := t.lookup([]compact.NodeID{compact.NewNodeID(0, index)})
	if err != nil {
		return hash.Digest{}, err
	}
	return mustDigest(hashes[0]), nil
}

// ProveInclusion returns the audit path proving that the leaf at index is
// part of the tree as it was at atSize.
func (t *Tree) ProveInclusion(index, atSize uint64) (*Proof, error) {
	if atSize > t.Size() || index >= atSize {
		return nil, fmt.Errorf("%w: leaf %d at size %d, tree size %d", ErrOutOfRange, index, atSize, t.Size())
	}

	nodes, err := proof.Inclusion(index, atSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	hashes, err := t.lookup(nodes.IDs)
	if err != nil {
		return nil, err
	}
	path, err := nodes.Rehash(hashes, t.hasher.HashChildren)
	if err != nil {
		return nil, fmt.Errorf("failed to rehash proof nodes: %w", err)
	}

	p := &Proof{
		Algorithm: t.alg,
		Index:     index,
		Size:      atSize,
		Hashes:    make([]hash.Digest, len(path)),
	}
	for i, h := range path {
		p.Hashes[i] = mustDigest(h)
	}
	return p, nil
}

func (t *Tree) lookup(ids []compact.NodeID) ([][]byte, error) {
	hashes := make([][]byte, len(ids))
	for i, id := range ids {
		h, ok := t.nodes[id]
		if !ok {
			return nil, fmt.Errorf("missing node at level %d index %d", id.Level, id.Index)
		}
		hashes[i] = h
	}
	return hashes, nil
}

func mustDigest(b []byte) hash.Digest {
	d, err := hash.FromBytes(b)
	if err != nil {
		panic(fmt.Sprintf("tree: %v", err))
	}
	return d
}
