package tree

import (
	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"

	"merkle-diff/internal/hash"
)

// Proof is an inclusion proof for the leaf at Index in the tree of Size
// leaves. It verifies only against the root of that size.
type Proof struct {
	Algorithm hash.Algorithm `json:"algorithm"`
	Index     uint64         `json:"index"`
	Size      uint64         `json:"size"`
	Hashes    []hash.Digest  `json:"hashes"`
}

// Verify reports whether leafHash is included in the tree with the given root.
func (p *Proof) Verify(leafHash, root hash.Digest) bool {
	return Verify(p, leafHash, root)
}

// Verify reports whether p proves leafHash under root.
func Verify(p *Proof, leafHash, root hash.Digest) bool {
	if p == nil || p.Algorithm.Validate() != nil {
		return false
	}
	path := make([][]byte, len(p.Hashes))
	for i := range p.Hashes {
		path[i] = p.Hashes[i][:]
	}
	hasher := rfc6962.New(p.Algorithm.CryptoHash())
	return proof.VerifyInclusion(hasher, p.Index, p.Size, leafHash[:], path, root[:]) == nil
}

// HashLeaf returns the tree leaf hash of payload under alg.
func HashLeaf(alg hash.Algorithm, payload []byte) hash.Digest {
	return mustDigest(rfc6962.New(alg.CryptoHash()).HashLeaf(payload))
}
