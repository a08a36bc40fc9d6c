// Package api implements the submission acceptor: POST /jobs, GET
// /jobs/{id}, /healthz, and /metrics over stdlib net/http.
package api
