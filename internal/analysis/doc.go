// Package analysis talks to the AI proxy and routes results back into the
// screening session.
//
// Calls are asynchronous. Each one is tagged with a session.Token naming
// the subject, step and field it was started for; when the focus has moved
// on by the time the result arrives, the machine drops it.
package analysis
