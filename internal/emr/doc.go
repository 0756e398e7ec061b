// Package emr hands completed screenings to an electronic medical record
// system.
//
// A record is turned into a Document (the EMR hand-off shape), rendered in
// the configured wire format and POSTed. A record's status moves to
// uploaded only after the EMR accepted it.
package emr
