// Package http serves the host control API.
//
// The API is what the host's own settings pane and renderer talk to. It
// listens on loopback TCP only and exposes the authorization ledger, the
// feature switches and the render state of each presentation region:
//
//	GET    /health
//	GET    /metrics
//	GET    /extensions
//	POST   /extensions/:identity/authorize
//	POST   /extensions/:identity/revoke
//	DELETE /extensions/:identity
//	GET    /settings
//	PUT    /settings
//	GET    /presentations/:kind
//	PUT    /presentations/:kind/native
//	DELETE /presentations/:kind/:identity/:id
//
// Everything below /metrics needs "Authorization: Bearer <token>", where
// the token is the one the host writes to its control token file at
// startup. A missing credential gets 401 and a wrong one 403.
//
// Every mutation goes through host.Core, so connected extensions see the
// same notifications they would if the change came from another extension.
package http
