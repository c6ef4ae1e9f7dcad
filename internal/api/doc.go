// Package api exposes the release orchestrator over HTTP for CI systems that
// prefer a request to a CLI invocation.
//
// Routes:
//
//	POST /v1/releases                       run a release (JSON or YAML spec)
//	GET  /v1/releases/{id}                  one release record
//	GET  /v1/namespaces/{ns}/current        the namespace's current release
//	GET  /v1/namespaces/{ns}/releases       every release of the namespace
//	POST /v1/namespaces/{ns}/abandon        fail a stale in-flight release
//	GET  /healthz                           liveness
//
// POST /v1/releases blocks until the release is terminal and answers 200 with
// the record whatever its outcome; clients branch on the record's outcome.
// Errors use a {"code", "message", "details"} envelope.
package api
