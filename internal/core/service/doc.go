// Package service implements restore points on top of a storage.Backend.
//
// This package contains:
//
//   - ManifestManager: crash-safe create/delete sequencing and retention
//   - GarbageCollector: removal of blobs the committed manifest no longer references
//   - Scheduler: debounced state machine driving automatic restore points
//   - RestorePoints: the facade used by the daemon and the CLI
//
// Every mutating operation goes through RestorePoints, which holds a single
// writer lock. Create writes the manifest first, then the main document, then
// missing assets, and garbage collects last, so an interrupted create leaves
// at worst one restore point whose load fails.
package service
