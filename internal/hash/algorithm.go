package hash

import (
	"crypto"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"sort"

	_ "golang.org/x/crypto/blake2b"
	_ "golang.org/x/crypto/sha3"
)

// ErrUnsupportedAlgorithm is returned for algorithm names outside the
// supported set.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// Algorithm names one of the supported 256-bit hash functions. The same
// function digests file content and hashes tree nodes.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"
	SHA3256    Algorithm = "sha3-256"

	// Default is used when no algorithm is configured, and for snapshot
	// files that do not record one.
	Default = SHA256
)

var algorithms = map[Algorithm]crypto.Hash{
	SHA256:     crypto.SHA256,
	BLAKE2b256: crypto.BLAKE2b_256,
	SHA3256:    crypto.SHA3_256,
}

// Algorithms returns the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for a := range algorithms {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// ParseAlgorithm validates name. An empty name selects Default.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return Default, nil
	}
	a := Algorithm(name)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// Validate reports whether a is supported and linked into the binary.
func (a Algorithm) Validate() error {
	h, ok := algorithms[a]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
	if !h.Available() || h.Size() != Size {
		return fmt.Errorf("%w: %q is not available", ErrUnsupportedAlgorithm, string(a))
	}
	return nil
}

// CryptoHash returns the crypto.Hash backing a. It panics on an
// unvalidated algorithm.
func (a Algorithm) CryptoHash() crypto.Hash {
	h, ok := algorithms[a]
	if !ok {
		panic(fmt.Sprintf("hash: unvalidated algorithm %q", string(a)))
	}
	return h
}

func (a Algorithm) String() string { return string(a) }
