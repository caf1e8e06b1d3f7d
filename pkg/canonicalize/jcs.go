// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization so that certification documents and stage lineages hash the
// same way on every machine.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DigestPrefix marks digests produced by this package. Stage hashes recorded in
// evidence manifests use the same "<algo>:<hex>" shape.
const DigestPrefix = "sha256:"

// JCS returns the canonical JSON form of v. v is marshalled with
// encoding/json first so struct tags apply.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform: %w", err)
	}
	return out, nil
}

// Digest returns "sha256:<hex>" over the canonical form of v.
func Digest(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return DigestPrefix + HashBytes(b), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
