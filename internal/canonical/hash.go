package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix leaves room for algorithm changes.
const (
	DomainRecord = "schoolscreen/record/v1"
	DomainReport = "schoolscreen/report/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The separator prevents ambiguity at the domain/data boundary.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum canonicalizes v and hashes it under domain.
func Checksum(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return HashWithDomain(domain, data), nil
}
