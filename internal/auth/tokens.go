// Package auth issues and verifies the HS256 tokens that guard the API
// and the progress channel.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

const (
	tokenIssuer      = "slides-server"
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenService signs and validates session-bound JWT pairs.
type TokenService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	logger          *zap.Logger
}

// NewTokenService wires the signing configuration.
func NewTokenService(cfg *config.Config, logger *zap.Logger) *TokenService {
	return &TokenService{
		secret:          []byte(cfg.JWTSecret),
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
		logger:          logger,
	}
}

// IssuePair issues an access and refresh token for one subject. The subject
// doubles as the progress-channel session the tokens grant access to.
func (s *TokenService) IssuePair(subject string) (models.TokenDetails, error) {
	access, err := s.issue(subject, TokenTypeAccess, s.accessTokenTTL)
	if err != nil {
		return models.TokenDetails{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.issue(subject, TokenTypeRefresh, s.refreshTokenTTL)
	if err != nil {
		return models.TokenDetails{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return models.TokenDetails{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (s *TokenService) issue(subject, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := models.Claims{
		SessionID: subject,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token of any type.
func (s *TokenService) Verify(tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, models.ErrTokenMalformed
		default:
			return nil, models.ErrTokenInvalid
		}
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyAccess validates a token and requires the access type.
func (s *TokenService) VerifyAccess(tokenString string) (*models.Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a token and requires the refresh type.
func (s *TokenService) VerifyRefresh(tokenString string) (*models.Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}
