package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// Version suffix enables future algorithm migration.
const (
	DomainDocument = "dgm/document/v1"
	DomainRequest  = "dgm/request/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash computes a content hash of a document's canonical JSON.
// Two documents with the same logical content hash identically regardless
// of key order.
func DocumentHash(doc Document) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// RequestKey computes the deduplication key of a request: the request type,
// scope and the unversioned document reference. Two requests for different
// revisions of the same document share a key, since a recompute always reads
// the current revision.
func RequestKey(typ RequestType, scope RequestScope, ref Ref) string {
	obj := map[string]any{
		"type":  typ.String(),
		"scope": scope.String(),
		"index": ref.Index,
		"doc":   ref.Type,
		"key":   ref.Key,
	}
	// Only strings are involved, marshaling cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainRequest, canonical)
}

// MustDocumentHash is like DocumentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDocumentHash(doc Document) string {
	h, err := DocumentHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
