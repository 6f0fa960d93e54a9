// Package admin serves the HTTP control surface of a running device:
// liveness, readiness per transport link, metrics, the registered tag table,
// register contents, and on-demand report emission.
package admin
