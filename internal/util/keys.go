package util

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// DigestLen is the number of hex characters kept from the SHA-256 sum (128 bits).
const DigestLen = 32

var (
	canonOnce sync.Once
	canon     cbor.EncMode
	canonErr  error
)

func canonicalMode() (cbor.EncMode, error) {
	canonOnce.Do(func() {
		eo := cbor.CoreDetEncOptions()
		eo.Time = cbor.TimeRFC3339Nano
		canon, canonErr = eo.EncMode()
	})
	return canon, canonErr
}

// Canonical encodes v with RFC 8949 core deterministic CBOR: map keys are sorted
// and numbers use their shortest form, so equal values always produce equal bytes.
// Values with no CBOR representation (funcs, channels, complex numbers) fail.
func Canonical(v any) ([]byte, error) {
	em, err := canonicalMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(v)
}

// Digest returns the first DigestLen hex characters of the SHA-256 of v's canonical encoding.
func Digest(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:DigestLen], nil
}
