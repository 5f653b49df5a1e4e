// Package auth issues and verifies the bearer tokens that guard the hub's
// mutating API routes.
//
// Tokens are HS256 JWTs signed with the configured shared secret. There are
// no user accounts: operators mint tokens with `grayhub token` and hand
// them to whatever drives the API (dashboard, scripts). Two roles exist:
// admin may change bridges, viewer may only read.
package auth
