package tree

import (
	"bytes"
	"encoding/binary"
	"errors"

	"merkle-diff/internal/hash"
)

var errMalformedLeaf = errors.New("malformed leaf payload")

// EncodeLeaf binds a relative path and its content digest into the bytes
// committed as one tree leaf:
//
//	uvarint(len(path)) || path || digest
//
// The length prefix is minimal and the digest has a fixed size, so distinct
// (path, digest) pairs never share a payload, whatever bytes the path holds.
func EncodeLeaf(path string, d hash.Digest) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(path)+hash.Size)
	buf = binary.AppendUvarint(buf, uint64(len(path)))
	buf = append(buf, path...)
	return append(buf, d[:]...)
}

// DecodeLeaf is the inverse of EncodeLeaf. Payloads that EncodeLeaf could not
// have produced, including overlong length prefixes, are rejected.
func DecodeLeaf(payload []byte) (string, hash.Digest, error) {
	n, k := binary.Uvarint(payload)
	if k <= 0 {
		return "", hash.Digest{}, errMalformedLeaf
	}
	rest := payload[k:]
	if n > uint64(len(rest)) || uint64(len(rest))-n != hash.Size {
		return "", hash.Digest{}, errMalformedLeaf
	}
	path := string(rest[:n])
	d, err := hash.FromBytes(rest[n:])
	if err != nil {
		return "", hash.Digest{}, errMalformedLeaf
	}
	if !bytes.Equal(EncodeLeaf(path, d), payload) {
		return "", hash.Digest{}, errMalformedLeaf
	}
	return path, d, nil
}
