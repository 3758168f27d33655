// Package storage defines persistence contracts for identity records.
//
// Business logic depends on these interfaces rather than on a concrete
// schema. The attempt ledger contract lives in the attempt package because
// it has more than one backend.
package storage
