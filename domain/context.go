package domain

import "context"

type tokenContextKey struct{}

// WithToken returns a copy of ctx carrying the authenticated token record.
func WithToken(ctx context.Context, token *Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext retrieves the token record stored by WithToken.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(*Token)
	return tok, ok && tok != nil
}
