package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/auth"
	"github.com/arimedika/server/internal/export"
	"github.com/arimedika/server/usecase"
)

const (
	maxUploadBytes  = 20 << 20
	presignValidity = 15 * time.Minute
)

// Handlers carries the wired dependencies for all HTTP endpoints.
type Handlers struct {
	users    repositories.UserRepository
	vault    repositories.DocumentVault
	tokens   *auth.Manager
	sessions *usecase.SessionManager
	chat     *usecase.ChatService
	meals    *usecase.MealService
	recipes  *usecase.RecipeService
	logger   *zap.Logger
}

func NewHandlers(
	users repositories.UserRepository,
	vault repositories.DocumentVault,
	tokens *auth.Manager,
	sessions *usecase.SessionManager,
	chat *usecase.ChatService,
	meals *usecase.MealService,
	recipes *usecase.RecipeService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		users:    users,
		vault:    vault,
		tokens:   tokens,
		sessions: sessions,
		chat:     chat,
		meals:    meals,
		recipes:  recipes,
		logger:   logger,
	}
}

func (h *Handlers) register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		return badRequest(c, "email and a password of at least 8 characters are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, h.logger, "failed to hash password", err)
	}

	user := &entities.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
	}
	if err := h.users.Create(c.Request().Context(), user); err != nil {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "registration_failed",
			Message: "an account with this email may already exist",
		})
	}

	pair, err := h.tokens.GeneratePair(user.ID)
	if err != nil {
		return internalError(c, h.logger, "failed to issue tokens", err)
	}
	return c.JSON(http.StatusCreated, AuthResponse{User: user, Tokens: pair})
}

func (h *Handlers) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := h.users.GetByEmail(c.Request().Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		return unauthorized(c, "invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return unauthorized(c, "invalid email or password")
	}

	pair, err := h.tokens.GeneratePair(user.ID)
	if err != nil {
		return internalError(c, h.logger, "failed to issue tokens", err)
	}
	return c.JSON(http.StatusOK, AuthResponse{User: user, Tokens: pair})
}

func (h *Handlers) refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	pair, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		return unauthorized(c, "invalid or expired refresh token")
	}
	return c.JSON(http.StatusOK, map[string]*auth.TokenPair{"tokens": pair})
}

func (h *Handlers) getProfile(c echo.Context) error {
	profile, err := h.users.GetProfile(c.Request().Context(), currentUserID(c))
	if err != nil {
		return internalError(c, h.logger, "failed to load profile", err)
	}
	if profile == nil {
		profile = &entities.HealthProfile{UserID: currentUserID(c)}
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handlers) putProfile(c echo.Context) error {
	var profile entities.HealthProfile
	if err := c.Bind(&profile); err != nil {
		return badRequest(c, "invalid request body")
	}
	profile.UserID = currentUserID(c)
	if err := h.users.UpsertProfile(c.Request().Context(), &profile); err != nil {
		return internalError(c, h.logger, "failed to save profile", err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handlers) listSessions(c echo.Context) error {
	d, err := chatDomain(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	store := h.sessions.Store(c.Request().Context(), currentUserID(c), d)
	groups, err := store.ListSessions(c.Request().Context())
	if err != nil {
		return internalError(c, h.logger, "failed to list sessions", err)
	}
	if groups == nil {
		groups = []usecase.SessionGroup{}
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handlers) newSession(c echo.Context) error {
	d, err := chatDomain(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	store := h.sessions.Store(c.Request().Context(), currentUserID(c), d)
	store.PersistActiveSession(c.Request().Context())
	store.StartSession()
	return c.JSON(http.StatusCreated, store.ActiveSession())
}

func (h *Handlers) loadSession(c echo.Context) error {
	d, err := chatDomain(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	store := h.sessions.Store(c.Request().Context(), currentUserID(c), d)
	session, err := store.LoadSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound(c, "session not found")
		}
		return internalError(c, h.logger, "failed to load session", err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handlers) deleteSession(c echo.Context) error {
	d, err := chatDomain(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	store := h.sessions.Store(c.Request().Context(), currentUserID(c), d)
	if err := store.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound(c, "session not found")
		}
		return internalError(c, h.logger, "failed to delete session", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) sendMessage(c echo.Context) error {
	d, err := chatDomain(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}

	ctx := c.Request().Context()
	store := h.sessions.Store(ctx, currentUserID(c), d)
	sessionID := req.SessionID
	if sessionID == "" {
		if active := store.ActiveSession(); active != nil {
			sessionID = active.ID
		} else {
			sessionID = store.StartSession()
		}
	}

	reply, err := h.chat.SendMessage(ctx, store, sessionID, req.Message, req.Language)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFound(c, "session not found")
		}
		return internalError(c, h.logger, "failed to process message", err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *Handlers) analyzeMeal(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}
	if file.Size > maxUploadBytes {
		return badRequest(c, "image too large")
	}

	src, err := file.Open()
	if err != nil {
		return internalError(c, h.logger, "failed to read upload", err)
	}
	defer src.Close()

	image, err := io.ReadAll(src)
	if err != nil {
		return internalError(c, h.logger, "failed to read upload", err)
	}

	analysis, err := h.meals.AnalyzeMeal(
		c.Request().Context(),
		image,
		file.Header.Get("Content-Type"),
		c.FormValue("note"),
	)
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "analysis_failed",
			Message: "meal analysis is unavailable right now",
		})
	}
	return c.JSON(http.StatusOK, analysis)
}

func (h *Handlers) suggestRecipes(c echo.Context) error {
	var req RecipeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Ingredients) == 0 {
		return badRequest(c, "at least one ingredient is required")
	}

	suggestion, err := h.recipes.Suggest(c.Request().Context(), req.Ingredients)
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "suggestion_failed",
			Message: "recipe suggestions are unavailable right now",
		})
	}
	return c.JSON(http.StatusOK, suggestion)
}

func (h *Handlers) shareRecord(c echo.Context) error {
	var record usecase.Record
	if err := c.Bind(&record); err != nil {
		return badRequest(c, "invalid request body")
	}
	if record.Kind == "" {
		return badRequest(c, "record kind is required")
	}

	ownerName := ""
	if user, err := h.users.GetByID(c.Request().Context(), currentUserID(c)); err == nil && user != nil {
		ownerName = user.Name
	}

	text := export.ShareText(&record, ownerName, time.Now())
	return c.JSON(http.StatusOK, ShareResponse{Text: text, Link: export.ShareLink(text)})
}

func (h *Handlers) exportRecord(c echo.Context) error {
	var record usecase.Record
	if err := c.Bind(&record); err != nil {
		return badRequest(c, "invalid request body")
	}
	if record.Kind == "" {
		return badRequest(c, "record kind is required")
	}

	ownerName := ""
	if user, err := h.users.GetByID(c.Request().Context(), currentUserID(c)); err == nil && user != nil {
		ownerName = user.Name
	}
	return c.JSON(http.StatusOK, export.BuildDocument(&record, ownerName, time.Now()))
}

func (h *Handlers) uploadDocument(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if file.Size > maxUploadBytes {
		return badRequest(c, "file too large")
	}

	src, err := file.Open()
	if err != nil {
		return internalError(c, h.logger, "failed to read upload", err)
	}
	defer src.Close()

	doc, err := h.vault.Put(
		c.Request().Context(),
		currentUserID(c),
		file.Filename,
		file.Header.Get("Content-Type"),
		src,
		file.Size,
	)
	if err != nil {
		return internalError(c, h.logger, "failed to store document", err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handlers) listDocuments(c echo.Context) error {
	docs, err := h.vault.List(c.Request().Context(), currentUserID(c))
	if err != nil {
		return internalError(c, h.logger, "failed to list documents", err)
	}
	if docs == nil {
		docs = []repositories.StoredDocument{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handlers) presignDocument(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "key is required")
	}
	url, err := h.vault.PresignedURL(c.Request().Context(), currentUserID(c), key, presignValidity)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return forbidden(c, "document belongs to another user")
		}
		return internalError(c, h.logger, "failed to presign document", err)
	}
	return c.JSON(http.StatusOK, PresignResponse{URL: url})
}

func (h *Handlers) deleteDocument(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "key is required")
	}
	if err := h.vault.Delete(c.Request().Context(), currentUserID(c), key); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return forbidden(c, "document belongs to another user")
		}
		return internalError(c, h.logger, "failed to delete document", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func chatDomain(c echo.Context) (entities.ChatDomain, error) {
	d := entities.ChatDomain(c.Param("domain"))
	if !d.Valid() {
		return "", errors.New("unknown conversation domain")
	}
	return d, nil
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: message})
}

func forbidden(c echo.Context, message string) error {
	return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: message})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: message})
}

func internalError(c echo.Context, logger *zap.Logger, message string, err error) error {
	logger.Error(message, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: message})
}
