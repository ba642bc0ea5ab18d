// hash.go derives stable dedup keys for grouping identical failures.

package errtel

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashLen is the number of hex characters kept from the digest.
const hashLen = 16

// Hash returns the dedup key for a failure signature:
// the first 16 hex characters of sha256("message|failureType|component|category").
//
// Each field is trimmed of surrounding whitespace; nothing volatile (timestamps,
// IDs, addresses) takes part, so the key is stable across processes.
func Hash(message, failureType, component string, category Category) string {
	input := strings.Join([]string{
		strings.TrimSpace(message),
		strings.TrimSpace(failureType),
		strings.TrimSpace(component),
		strings.TrimSpace(string(category)),
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// SignatureHash is Hash with the component left empty. Records reported from
// different components with the same message, type, and category share a
// signature, which is what patterns group by.
func SignatureHash(message, failureType string, category Category) string {
	return Hash(message, failureType, "", category)
}

// RecordHash computes the dedup key for a record.
func RecordHash(r ErrorRecord) string {
	return Hash(r.Message, r.FailureType(), r.Component, r.Category)
}
