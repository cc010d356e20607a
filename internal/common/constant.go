// Package common contains shared constants, the error taxonomy and small
// helpers used across AccountKeeper components.
package common

// AuthorizationHeaderName is the gRPC metadata key carrying the
// "Bearer <token>" credential on inbound requests.
const AuthorizationHeaderName = "authorization"

// BearerScheme prefixes access tokens in the authorization header.
const BearerScheme = "Bearer "

// OpaqueTokenSize is the number of random bytes behind refresh,
// verification and reset tokens (80 hex characters once encoded).
const OpaqueTokenSize = 40
