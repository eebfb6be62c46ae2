// Package identity implements CertGuard session authentication.
//
// It provides:
//   - LoadOrCreateKey  loads or creates the RSA signing key on disk
//   - TokenIssuer      issues and verifies RS256 session tokens
//   - RequireSession   Gin middleware enforcing a Bearer session token
//   - RequireRole      Gin middleware restricting a route to given roles
package identity
