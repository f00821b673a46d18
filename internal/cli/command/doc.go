// Package command defines the restorepoint-cli commands.
//
// The CLI works directly against the restore point storage of a document,
// using the same configuration as restorepointd:
//
//   - list, show: inspect restore points
//   - create, import: store new restore points
//   - export, restore: read restore points back
//   - delete, purge: remove restore points
//   - legacy: read the previous-generation autosave store
//   - status, config: inspect the setup
package command
