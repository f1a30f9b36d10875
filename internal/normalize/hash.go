package normalize

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// FileHash computes the hex-encoded SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// StableID derives a short deterministic identifier from ordered values.
// Values are normalized with Name and joined with null separators.
func StableID(prefix string, values ...string) string {
	h := sha256.New()
	for _, v := range values {
		h.Write([]byte(Name(v)))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s-%x", prefix, h.Sum(nil)[:8])
}
