package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

// DeriveInvoiceID implements spec §4.3 step 1: the file stem, if it matches
// a known vendor prefix, else "unknown-{sha16(name)}". It is computed once
// in Stage A from the object name and is stable across retries, so a
// redelivered Uploaded event always mints the same invoice id.
func DeriveInvoiceID(name string) string {
	stem := stem(name)
	if model.DetectVendor(stem) != model.VendorOther {
		return stem
	}
	return "unknown-" + sha16(name)
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sha16 is the first 16 hex characters of the SHA-256 digest of s.
func sha16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
