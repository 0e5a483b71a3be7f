// Package client talks to the authkeeper gRPC endpoint on behalf of authctl.
//
// GRPCClient keeps the caller's token pair, attaches the access token to
// every call and, when the server reports an expired access token, rotates
// the refresh token once and retries. Status codes are mapped to the
// sentinel errors ErrUnauthorized, ErrInvalidArgument and ErrUnavailable.
//
// Session persists the token pair between authctl invocations.
package client
