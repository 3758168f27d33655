// Package oauth bridges login decisions onto an external Hydra-style
// authorization server.
//
// The authorization server owns the OAuth2/OIDC protocol. This package only
// fetches login requests by challenge and accepts or rejects them through the
// admin API.
package oauth
