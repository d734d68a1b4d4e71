// Package snapshot provides the canonical value model used to fingerprint store state.
//
// State fields and payloads are plain Go values. Whenever they cross a boundary that needs
// a stable encoding (trace rows, golden traces, CLI JSON output) they are converted into the
// sealed Value family and serialized as canonical JSON.
//
// Key design constraints:
//   - Object keys sorted by UTF-16 code units (RFC 8785), never by UTF-8 bytes
//   - Strings NFC normalized, no HTML escaping
//   - No fractional floats and no null in canonical output
//   - Hashes are SHA-256 with a versioned domain prefix
//
// This package imports nothing internal.
package snapshot
