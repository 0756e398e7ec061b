// Package record persists screening sessions as versioned records on top
// of a kv.Store.
//
// Key layout (the four namespaces never collide):
//
//	records/<subjectID>   one Record per subject, overwritten on every save
//	meta/index            []IndexEntry, a cache derived from records/
//	meta/active_subject   subject ID of the session being worked on
//	meta/settings         device preferences
//
// The index is never the source of truth. List verifies it against the
// record keys and rebuilds it when it is missing, corrupt or stale.
//
// Reads are fail-open: a record whose payload does not decode or whose
// checksum does not match is treated as absent and logged.
//
// Concurrency: a Repository serializes its own read-modify-write cycles.
// Two processes writing the same store are last-writer-wins; there is no
// cross-process locking.
package record
