package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour

	accessTokenType  = "access"
	refreshTokenType = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the authenticated user identity plus the token type, so a
// refresh token can never be used as an access token.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is an access token plus the refresh token that renews it.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Manager issues and validates HS256-signed token pairs.
type Manager struct {
	secret []byte
}

func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Manager{secret: []byte(secret)}, nil
}

// GeneratePair issues a fresh access+refresh token pair for a user.
func (m *Manager) GeneratePair(userID string) (*TokenPair, error) {
	access, err := m.sign(userID, accessTokenType, accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := m.sign(userID, refreshTokenType, refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccess parses an access token and returns the user id.
func (m *Manager) ValidateAccess(tokenString string) (string, error) {
	return m.validate(tokenString, accessTokenType)
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (m *Manager) Refresh(refreshToken string) (*TokenPair, error) {
	userID, err := m.validate(refreshToken, refreshTokenType)
	if err != nil {
		return nil, err
	}
	return m.GeneratePair(userID)
}

func (m *Manager) sign(userID, tokenType string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) validate(tokenString, wantType string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return "", fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}
	return claims.UserID, nil
}
