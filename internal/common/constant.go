package common

// AuthorizationHeaderName is the gRPC metadata key carrying the bearer access token.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the access token in the authorization header.
const BearerPrefix = "Bearer "

// RefreshTokenBytes is the number of random bytes behind an opaque refresh token.
const RefreshTokenBytes = 32
