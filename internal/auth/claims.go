// Package auth implements operator authentication: JWT issuance and
// validation for the single configured operator, plus API key resolution for
// non-interactive clients.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by Teledrop tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Identity is the resolved operator identity (the Subject, duplicated
	// for explicitness in handler code).
	Identity string `json:"identity"`

	// TokenType is "access" or "refresh".
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken reports whether this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken reports whether this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}
