// Package middleware provides shared request-scope helpers for the
// resolution core.
//
// This package lives in pkg/ (not internal/) so that platform deployments
// embedding the core can read and set the network scope in their own
// middleware.
package middleware

import "context"

type contextKey string

const networkKey contextKey = "network"

// GetNetworkID extracts the network id from the context.
// Returns "default" if no network is set.
func GetNetworkID(ctx context.Context) string {
	if v, ok := ctx.Value(networkKey).(string); ok && v != "" {
		return v
	}
	return "default"
}

// SetNetworkID stores the network id in the context.
func SetNetworkID(ctx context.Context, networkID string) context.Context {
	return context.WithValue(ctx, networkKey, networkID)
}
