package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows algorithm migration.
const (
	DomainState   = "vuex/state/v1"
	DomainPayload = "vuex/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash fingerprints a full state snapshot.
// Two states hash equal exactly when their canonical encodings are equal.
func StateHash(state map[string]any) (string, error) {
	if state == nil {
		state = map[string]any{}
	}
	data, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: %w", err)
	}
	return hashWithDomain(DomainState, data), nil
}

// PayloadHash fingerprints a commit or dispatch payload.
// A nil payload hashes as the empty object so payload-less calls still have an identity.
func PayloadHash(payload any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: %w", err)
	}
	return hashWithDomain(DomainPayload, data), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(state map[string]any) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}

// EncodeJSON returns the canonical encoding of v as a string, or "null" for nil.
// Used for storage columns and display where nil payloads are legal.
func EncodeJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
