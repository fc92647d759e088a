package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// TokenSize is the number of random bytes in a generated access token.
const TokenSize = 32

// RandomData returns a slice of the specified size containing random data.
func RandomData(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("size cannot be negative")
	}

	data := make([]byte, size)
	_, err := rand.Read(data)
	if err != nil {
		return nil, fmt.Errorf("failed generating random data: %w", err)
	}

	return data, nil
}

// Hash returns the BLAKE2b-256 digest of data. The domain string separates
// hashes computed for different purposes over the same input.
func Hash(domain string, data []byte) [32]byte {
	h, _ := blake2b.New256(nil) // only errors for keys > 64 bytes
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)

	var sum [32]byte
	copy(sum[:], h.Sum(nil))

	return sum
}

// NewToken generates a random base58 encoded access token.
func NewToken() (string, error) {
	data, err := RandomData(TokenSize)
	if err != nil {
		return "", err
	}

	return base58.Encode(data), nil
}

// HashToken returns the base58 encoded hash of an access token, as stored in
// the database.
func HashToken(token string) string {
	sum := Hash("access-token", []byte(token))
	return base58.Encode(sum[:])
}

// EqualHashes compares two encoded hashes in constant time.
func EqualHashes(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
