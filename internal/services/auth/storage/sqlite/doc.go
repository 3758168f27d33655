// Package sqlite provides SQLite-backed identity persistence and the default
// login attempt ledger.
package sqlite
