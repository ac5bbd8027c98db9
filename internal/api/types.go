package api

import (
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/internal/auth"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	User   *entities.User  `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Language  string `json:"language,omitempty"`
}

type RecipeRequest struct {
	Ingredients []string `json:"ingredients"`
}

type ShareResponse struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

type PresignResponse struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
