// Package auth issues and validates device tokens for the request/response
// server.
//
// A device token is an HS256 JWT whose subject names the device and whose
// "loc" claim carries its location ID. Tokens are validated by signature and
// expiry only; there is no revocation list.
package auth
