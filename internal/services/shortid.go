package services

import (
	"crypto/rand"
	"math/big"
)

const (
	shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	shortIDLength   = 8
	// Ten draws against a 62^8 keyspace; running out means the table is
	// pathologically full and the caller should retry the whole operation.
	shortIDMaxAttempts = 10

	generatedPasswordLength = 12
)

// randomString draws uniformly from the 62-symbol alphabet using crypto/rand.
func randomString(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(shortIDAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = shortIDAlphabet[n.Int64()]
	}
	return string(out), nil
}

// allocateShortID returns an 8-char candidate not currently present according
// to exists. It retries on collision and reports ErrAllocationExhausted once
// the attempt budget is spent; it never mutates the store.
func allocateShortID(exists func(candidate string) (bool, error)) (string, error) {
	for attempt := 0; attempt < shortIDMaxAttempts; attempt++ {
		candidate, err := randomString(shortIDLength)
		if err != nil {
			return "", err
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fail(ErrAllocationExhausted, "could not allocate a unique identifier, retry later")
}

// generatePassword returns a random throwaway password for implicitly created
// users. It is bcrypt-hashed before storage and never returned to callers.
func generatePassword() (string, error) {
	return randomString(generatedPasswordLength)
}
