// Package export turns screening sessions into the documents that leave
// the device.
//
// BuildFullSnapshot is the download and re-import format: the whole
// session as indented JSON, stable enough that parsing and rebuilding
// reproduces the same bytes. ImportSnapshot validates such a file against
// a CUE schema before parsing it.
//
// BuildReportProjection is what the summary prompt and the EMR uploader
// consume: canonical JSON with capture scratch data (ExcludedFields),
// navigation state and skipped sections removed, skip reasons turned into
// notes and the BMI derived.
//
// WriteRoster renders the screening list as an Excel workbook.
package export
