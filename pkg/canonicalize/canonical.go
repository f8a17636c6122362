// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing of ledger entries.
//
// Canonical bytes are independent of struct field order and map key
// insertion order. Non-integer numbers are rejected outright: hashed
// payloads must carry money as integer minor units and never as floats,
// so a payload containing a fractional number is a caller bug. Integers
// beyond 2^53 in magnitude are rejected too, because RFC 8785 renders
// numbers as ES6 doubles and would canonicalize them lossily.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

// Digest is a pluggable one-way hash over canonical bytes, returning a
// stable string form. It must be deterministic and collision-resistant;
// the ledger never depends on a particular algorithm.
type Digest func(data []byte) string

// SHA256 is the default digest: hex-encoded SHA-256 with an algorithm prefix.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Canonicalize returns the RFC 8785 canonical JSON bytes of v. Fails if
// v does not marshal to JSON or contains numbers an ES6 double cannot
// carry exactly.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	if err := rejectUnsafeNumbers(raw); err != nil {
		return nil, err
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return out, nil
}

// Hash returns digest(Canonicalize(v)).
func Hash(v any, digest Digest) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return digest(b), nil
}

// CanonicalHash is Hash with the default SHA-256 digest.
func CanonicalHash(v any) (string, error) {
	return Hash(v, SHA256)
}

// maxSafeInteger is the largest magnitude an ES6 double represents
// exactly; the JCS transform renders every number as one.
const maxSafeInteger = int64(1) << 53

// rejectUnsafeNumbers walks the JSON document and fails on any number
// with a fraction or exponent part, or an integer outside the safe
// double range.
func rejectUnsafeNumbers(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if err != nil {
			// io.EOF ends the walk; raw came from json.Marshal so no other error occurs.
			return nil
		}
		if n, ok := tok.(json.Number); ok {
			s := n.String()
			if strings.ContainsAny(s, ".eE") {
				return fmt.Errorf("canonicalize: non-integer number %s in hashed payload", s)
			}
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil || i > maxSafeInteger || i < -maxSafeInteger {
				return fmt.Errorf("canonicalize: integer %s outside the safe range in hashed payload", s)
			}
		}
	}
}
