package hash

import (
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// HashFile computes the digest of a file using streaming for large files.
// It returns the digest and the number of bytes read.
func HashFile(fs billy.Basic, name string, alg Algorithm) (Digest, int64, error) {
	file, err := fs.Open(name)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return HashReader(alg, file)
}

// HashReader digests everything r yields.
func HashReader(alg Algorithm, r io.Reader) (Digest, int64, error) {
	h := alg.CryptoHash().New()
	buf := make([]byte, bufferSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, total, fmt.Errorf("failed to read file: %w", err)
		}
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, total, nil
}
