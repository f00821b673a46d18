// Package main provides the entry point for restorepointd.
//
// restorepointd watches a document directory and takes an automatic restore
// point once the directory has been quiet for scheduler.interval after a
// change. With http.addr set it also serves the restore point API and
// Prometheus metrics. Editing the configuration file reloads the log level.
//
// Usage:
//
//	restorepointd -config restorepoint.yaml
//	restorepointd -document ./song -dir /var/lib/restorepoint -http :9464
package main
