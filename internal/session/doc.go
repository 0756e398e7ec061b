// Package session is the screening wizard's state machine.
//
// A Machine owns the live screening.Session of the active subject: which
// step is current, what has been entered and which steps were skipped.
// Every mutation is applied under the machine's lock and then reported to
// the autosave policy, which persists the snapshot through the record
// repository once edits go quiet.
//
// Analysis results arrive asynchronously. They carry a Token naming the
// subject, step and field they were started for, and are discarded when
// that context is no longer the machine's focus, so a late result never
// lands in another subject's or another step's data.
package session
