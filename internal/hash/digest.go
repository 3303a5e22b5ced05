package hash

import (
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of every Digest.
const Size = 32

// Digest is the fixed-size output of a supported hash algorithm.
type Digest [Size]byte

// Sum digests data with alg.
func Sum(alg Algorithm, data []byte) Digest {
	h := alg.CryptoHash().New()
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// FromBytes copies b into a Digest. b must be exactly Size bytes long.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("digest must be %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ParseDigest decodes a lowercase or uppercase hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(Size) {
		return d, fmt.Errorf("digest %q: want %d hex characters, got %d", s, hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest %q: %w", s, err)
	}
	return d, nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, d[:])
	return b
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText encodes d as lowercase hex, which makes Digest a JSON string
// both as a value and as a map key.
func (d Digest) MarshalText() ([]byte, error) {
	buf := make([]byte, hex.EncodedLen(Size))
	hex.Encode(buf, d[:])
	return buf, nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
