// Package canonical serializes decoded JSON values in RFC 8785 canonical
// form and derives domain-separated content hashes from them.
//
// Canonical bytes are used for two things: the checksum stored alongside a
// screening record, and the report projection handed to the summary prompt
// and the EMR uploader. Both must be stable across processes, so:
//
//   - object keys are ordered by UTF-16 code units, not UTF-8 bytes
//   - strings are NFC normalized at the serialization boundary
//   - <, > and & are not escaped, nor are U+2028 and U+2029
//   - numbers use the shortest round-trip form
//
// Unlike content-addressed identities elsewhere, screening payloads carry
// measurements and missing values, so floats and null are permitted.
package canonical
