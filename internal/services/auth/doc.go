// Package auth is the login front door placed before the authorization
// server.
//
// It decides every password login: failed-attempt throttling per IP, ban and
// ownership checks, and the report back to the authorization server. Account
// registration, password recovery and ban administration live here too so
// every rule reads from the same store.
//
// Subpackages:
//   - login: the decision engine and its outcomes
//   - throttle, attempt, ban, password: the policies the engine consults
//   - oauth: authorization server admin client and the outcome bridge
//   - account: registration, recovery, bans and ownership links
//   - storage: persistence interfaces with SQLite and Redis implementations
//   - api/httpapi: the echo HTTP surface
//   - app: process wiring and lifecycle
package auth
