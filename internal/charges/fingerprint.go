package charges

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/interbox/payments-backend/pkg/enums"
)

// Fingerprint derives a stable identity for a payment intent. Two requests
// with the same kind, payer, and product collapse into one open charge.
func Fingerprint(kind enums.IntentKind, email, taxID, productRef string) string {
	parts := []string{
		string(kind),
		strings.ToLower(strings.TrimSpace(email)),
		normalizeTaxID(taxID),
		strings.ToLower(strings.TrimSpace(productRef)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// normalizeTaxID strips CPF/CNPJ punctuation so formatting differences do not
// defeat deduplication.
func normalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range taxID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// shortFingerprint is the correlation id discriminator for registrations.
func shortFingerprint(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return fingerprint
	}
	return fingerprint[:8]
}
