package gateway

import (
	"context"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// SessionStore hands out the bearer token for the signed-in user. It is owned
// by the auth layer; the gateway only reads from it.
type SessionStore interface {
	Token(ctx context.Context) (string, error)
}

// StaticSession is a SessionStore with a fixed token.
type StaticSession string

func (s StaticSession) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// bearer returns the token to send, or "" for an unauthenticated request.
// Tokens that parse as JWTs and carry an exp in the past are not sent; opaque
// tokens are passed through untouched.
func (c *Client) bearer(ctx context.Context) string {
	if c.session == nil {
		return ""
	}
	token, err := c.session.Token(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("session token unavailable")
		return ""
	}
	if token == "" {
		return ""
	}

	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return token
	}
	if claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time) {
		c.logger.Warn("session token expired, sending unauthenticated request")
		return ""
	}
	return token
}
