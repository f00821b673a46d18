// Package handler implements the restore point HTTP API served by
// restorepointd.
//
// Endpoints:
//
//   - GET    /health                          liveness and storage support
//   - GET    /v1/status                       autosave state and last error
//   - GET    /v1/restorepoints                list, newest first
//   - POST   /v1/restorepoints                manual create {"title": "..."}
//   - GET    /v1/restorepoints/{id}           one record
//   - POST   /v1/restorepoints/{id}/restore   restore into the document
//   - DELETE /v1/restorepoints/{id}           delete one
//
// Every JSON body uses the Response envelope.
package handler
