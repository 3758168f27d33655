// Package server composes and runs the authgate process boundary.
//
// It serves the echo login surface over HTTP and a gRPC health endpoint,
// both backed by one SQLite store. The attempt ledger moves to Redis when a
// Redis address is configured so several instances share throttle state.
package server
