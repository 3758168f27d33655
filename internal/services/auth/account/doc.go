// Package account implements identity lifecycle operations: registration
// with email activation, password change and recovery, ban administration
// and ownership links.
package account
