// Package idempotency deduplicates retried requests. A caller that retries
// an authorization with the same Idempotency-Key gets the recorded decision
// back instead of spending another credit.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}
