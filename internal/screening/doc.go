// Package screening defines the school health screening domain model.
//
// A Session is the working set of one subject's screening data plus its
// navigation state. Steps follow the fixed order in Steps; a skipped step
// always carries a non-empty reason.
//
// SECTION UPDATES:
//
// Sections change through Patch values, one variant per section. Merging
// follows one rule everywhere:
//   - composite blocks (device vitals, stethoscope, final report) merge key
//     by key: only the keys a patch sets are replaced
//   - every other section is replaced as a whole
//
// Patches are validated before they touch the session, so a rejected patch
// leaves the session unchanged.
package screening
