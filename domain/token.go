package domain

import "time"

// TokenKind distinguishes the two signed token types.
type TokenKind string

const (
	// TokenKindAccess is the short-lived credential sent with every request.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh is the long-lived credential used only to mint new
	// access tokens.
	TokenKindRefresh TokenKind = "refresh"
)

// TokenPair is what a successful sign-in or refresh hands back to the client.
type TokenPair struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}
