// Package authctx carries the authenticated caller through request contexts.
package authctx

import "context"

type ctxKey string

const callerKey ctxKey = "wk.caller"

// Caller is the identity extracted from a verified access token.
type Caller struct {
	AccountID int64
	Admin     bool
}

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom fetches the caller from context.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}

// AccountID returns the caller's account id, or nil for guests.
func AccountID(ctx context.Context) *int64 {
	c, ok := CallerFrom(ctx)
	if !ok {
		return nil
	}
	id := c.AccountID
	return &id
}
