// Package domain defines the restore point models and errors.
//
// Domain models are plain values without IO dependencies:
//
//   - Record: one retained restore point
//   - Manifest: the ordered list of records, newest first
//   - Package: a serialized document (main document plus assets)
//   - Errors: coded domain errors compared with errors.Is
package domain
