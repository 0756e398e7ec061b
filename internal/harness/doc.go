// Package harness runs scripted screening sessions against the real
// session state machine.
//
// Each scenario gets a fresh record repository over an in-memory store
// (unless WithStore says otherwise), a stepping clock, sequential
// analysis task IDs and an autosave policy whose timer never fires, so
// saves happen exactly at save, reload, leave and finalize steps. That
// keeps record versions and golden output identical across runs.
//
// Analysis steps go through analysis.Dispatcher with a scripted analyzer:
// the step names the target field and the reply (result or error), and
// may move the wizard while the call is in flight to exercise stale
// result handling.
//
// # Scenario format
//
// Scenarios are YAML files:
//
//	name: jane_walk
//	description: "What this scenario validates"
//	flow:
//	  - invoke: identify
//	    args: { qrId: S1, name: { value: Jane } }
//	    expect: { step: STUDENT_IDENTIFICATION, resumed: false }
//	  - invoke: update
//	    args:
//	      section: anthropometry
//	      value: { heightCm: { value: "140" } }
//	  - invoke: skip
//	    args: { step: REVIEW_AND_EXPORT, reason: "n/a" }
//	    expect: { error: UNSKIPPABLE_STEP }
//	assertions:
//	  - type: record
//	    subject: S1
//	    status: completed
//	  - type: projection
//	    subject: S1
//	    path: anthropometry.bmi.value
//	    equals: 17.86
//
// Args use the JSON field names of an exported snapshot, so a section
// patch in a scenario reads like the section in an export file.
//
// # Actions
//
//   - identify, correct: args are patientInfo
//   - update: args.section is a snapshot section key, args.value its content
//   - skip, unskip, goto: args.step, plus args.reason for skip
//   - next, previous
//   - analysis: args.field, args.result or args.error, optional
//     args.navigate to move the wizard while the call is in flight
//   - save, reload, leave, finalize, reset
//
// # Assertion types
//
//   - current_step: where the wizard ended
//   - record: stored status and version of a subject
//   - projection: a dotted path in a subject's report projection equals
//     a value, or is absent
//   - index_count: number of stored records
package harness
