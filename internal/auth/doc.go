// Package auth guards the HTTP API with optional bearer-token
// authentication. Tokens are HS256 JWTs signed with a shared secret;
// when no secret is configured every request passes through.
package auth
