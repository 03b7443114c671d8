package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old journals.
const (
	DomainMessage  = "scenesync/message/v1"
	DomainSnapshot = "scenesync/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageHash computes the content hash of a message at a given seq.
func MessageHash(seq int64, m Message) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"subject": string(m.Subject()),
		"seq":     seq,
		"data":    m,
	})
	if err != nil {
		return "", fmt.Errorf("MessageHash: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}

// SnapshotHash computes the content hash of any mirror snapshot value.
func SnapshotHash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
