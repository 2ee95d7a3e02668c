package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// fingerprintLength is the number of hex characters kept from the digest.
const fingerprintLength = 16

// NormalizeQuestion trims the question and collapses internal whitespace.
// Casing is preserved; lower-casing happens only inside Fingerprint so the
// generation prompt sees the question as the caller wrote it.
func NormalizeQuestion(question string) string {
	return strings.Join(strings.Fields(question), " ")
}

// Fingerprint identifies a query for caching and request deduplication.
// Questions that differ only in whitespace or letter case map to the same
// fingerprint as long as they run with the same options.
func Fingerprint(question string, maxChunks int, temperature float64) string {
	normalized := strings.ToLower(NormalizeQuestion(question))

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxChunks)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(temperature, 'f', -1, 64)))
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLength]
}
