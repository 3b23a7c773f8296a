// Package auth issues and checks the bearer tokens of the HTTP API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Two roles exist:
// a viewer may read, an operator may also change display attributes.
// Reads and the event stream are open on the local listener; every write
// endpoint requires an operator token.
//
// Tokens are minted with "nvdisplay token" and carry no server-side
// session, so revocation means rotating the secret.
package auth
