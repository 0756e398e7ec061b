// Package kv defines the keyed record store that every screening record,
// the list index, the active-subject marker and app settings live in.
//
// A Store maps string keys to opaque byte payloads. Implementations live in
// subpackages (memory, file, sqlite, redis, s3, postgres) and are selected at
// startup by package drivers.
//
// # Failure model
//
//   - Reading a missing key is not an error: Read reports ok=false.
//   - Running out of capacity is reported as ErrQuotaExceeded (usually wrapped
//     in *QuotaError) so callers can skip a save and keep working.
//   - Stores never interpret payloads. Corrupt content is detected by the
//     record layer and treated as absent.
//
// Keys enumerates lazily. Ranging over the returned sequence a second time
// re-reads the backing medium, so a sequence may be kept and restarted.
package kv
