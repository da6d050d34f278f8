package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload issued for API and websocket access. Subject
// holds the client identity, SessionID binds the token to a progress room.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// TokenDetails pairs the freshly issued access and refresh tokens.
type TokenDetails struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
