// Package journal saves memories: images go to Drive, one row per memory
// goes to the journal sheet.
//
// Every upload failure is prefixed with "image upload error" and every
// append failure wraps ErrAppendFailed, so callers can tell the two apart
// with errors.Is.
package journal
