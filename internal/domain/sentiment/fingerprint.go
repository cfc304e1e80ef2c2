package sentiment

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Fingerprint maps input text to a stable 32-hex-character key used for both
// cache and queue lookups. Normalization is trim-only: the digest is computed
// over strings.TrimSpace(text), nothing else. MD5 is fine here, this is a
// dedup key, not a security boundary.
func Fingerprint(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrInvalidInput
	}
	sum := md5.Sum([]byte(trimmed))
	return hex.EncodeToString(sum[:]), nil
}
