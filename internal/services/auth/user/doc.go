// Package user defines the identity record and its canonical identifier rules.
package user
