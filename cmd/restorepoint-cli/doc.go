// Package main provides the entry point for restorepoint-cli.
//
// restorepoint-cli inspects and manages the restore points of a document
// directory without a running daemon:
//
//	restorepoint-cli list
//	restorepoint-cli -d ./song create --title "before mixdown"
//	restorepoint-cli export --out snap.zip 01J...
//	restorepoint-cli restore 01J...
//	restorepoint-cli legacy --path autosave.db --import
//
// Exit codes: 0 ok, 1 error, 2 usage, 3 not found, 4 unsupported,
// 5 corrupted.
package main
