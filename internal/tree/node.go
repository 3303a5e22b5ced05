package tree

import "merkle-diff/internal/hash"

// Leaf is one file committed to a MerkleTree.
type Leaf struct {
	Path   string
	Digest hash.Digest
}

// Payload returns the encoded bytes the tree commits to for l.
func (l Leaf) Payload() []byte {
	return EncodeLeaf(l.Path, l.Digest)
}

func lessLeaf(a, b Leaf) bool {
	return a.Path < b.Path
}

// MerkleTree is a Tree built from a set of files together with the table
// mapping each path to its leaf position.
type MerkleTree struct {
	*Tree
	leaves []Leaf
	index  map[string]uint64 // path -> leaf index
}
