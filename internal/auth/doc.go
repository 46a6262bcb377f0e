// Package auth issues and verifies the optional bearer tokens guarding the
// gateway.
//
// Tokens are HS256 JWTs carrying a subject and a role. A viewer may read
// Things and subscribe to pushes; an operator may also write properties and
// request or cancel actions. The role-permission mapping is static.
package auth
