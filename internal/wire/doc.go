// Package wire defines the request and response shapes exchanged with the
// affiliate backend and the receipt validator.
//
// Request bodies are serialized with MarshalCanonical so the same logical
// request always produces the same bytes:
//   - Object keys sorted by UTF-16 code units
//   - No HTML escaping
//   - Strings NFC normalized
//   - No floats
//
// Deterministic bodies keep request logs diffable and let the payload shapes
// be pinned by golden files.
package wire
