// Package common contains shared constants and sentinel errors used across
// Shopkeeper components.
package common

// AccessTokenHeaderName is the HTTP header and gRPC metadata key used to
// carry the bearer credential on outbound requests.
const AccessTokenHeaderName = "authorization"

// BearerPrefix precedes the access token in AccessTokenHeaderName values.
const BearerPrefix = "Bearer "
