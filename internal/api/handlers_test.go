package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/auth"
	"github.com/arimedika/server/internal/extract"
	ws "github.com/arimedika/server/internal/websocket"
	"github.com/arimedika/server/usecase"
)

type memUserRepo struct {
	mu       sync.Mutex
	users    map[string]*entities.User
	profiles map[string]*entities.HealthProfile
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:    make(map[string]*entities.User),
		profiles: make(map[string]*entities.HealthProfile),
	}
}

func (r *memUserRepo) Create(_ context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return errors.New("duplicate email")
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) UpsertProfile(_ context.Context, profile *entities.HealthProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = profile
	return nil
}

func (r *memUserRepo) GetProfile(_ context.Context, userID string) (*entities.HealthProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[userID], nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entities.Session
}

func (r *memSessionRepo) Upsert(_ context.Context, session *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*entities.Session)
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id string) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id], nil
}

func (r *memSessionRepo) ListByDomain(_ context.Context, userID string, d entities.ChatDomain) ([]*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Domain == d {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

type noopMirror struct{}

func (noopMirror) SaveActive(context.Context, string, entities.ChatDomain, *entities.Session) error {
	return nil
}

func (noopMirror) LoadActive(context.Context, string, entities.ChatDomain) (*entities.Session, error) {
	return nil, nil
}

func (noopMirror) Clear(context.Context, string, entities.ChatDomain) error { return nil }

type memVault struct {
	mu   sync.Mutex
	docs map[string]repositories.StoredDocument
}

func (v *memVault) Put(_ context.Context, userID, name, contentType string, r io.Reader, size int64) (*repositories.StoredDocument, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.docs == nil {
		v.docs = make(map[string]repositories.StoredDocument)
	}
	doc := repositories.StoredDocument{
		Key:         userID + "/" + name,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		UploadedAt:  time.Now(),
	}
	v.docs[doc.Key] = doc
	return &doc, nil
}

func (v *memVault) List(_ context.Context, userID string) ([]repositories.StoredDocument, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []repositories.StoredDocument
	for key, doc := range v.docs {
		if strings.HasPrefix(key, userID+"/") {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (v *memVault) PresignedURL(_ context.Context, userID, key string, _ time.Duration) (string, error) {
	if !strings.HasPrefix(key, userID+"/") {
		return "", domain.ErrPermissionDenied
	}
	return "https://storage.example.com/" + key, nil
}

func (v *memVault) Delete(_ context.Context, userID, key string) error {
	if !strings.HasPrefix(key, userID+"/") {
		return domain.ErrPermissionDenied
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.docs, key)
	return nil
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, req repositories.ChatRequest) (string, error) {
	return "You said: " + req.Input, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	users := newMemUserRepo()
	tokens, err := auth.NewManager("api-test-secret")
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	sessions := usecase.NewSessionManager(&memSessionRepo{}, noopMirror{}, 10*time.Millisecond, logger)
	chat := usecase.NewChatService(echoCompleter{}, users, logger)
	meals := usecase.NewMealService(nil, logger)
	recipes := usecase.NewRecipeService(echoCompleter{}, logger)
	gateway := ws.NewGateway(sessions, chat, nil, nil, logger)

	handlers := NewHandlers(users, &memVault{}, tokens, sessions, chat, meals, recipes, logger)

	e := echo.New()
	RegisterRoutes(e, handlers, tokens, gateway)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func registerUser(t *testing.T, base string) (string, AuthResponse) {
	t.Helper()
	resp, body := postJSON(t, base+"/api/v1/auth/register", "", RegisterRequest{
		Email:    fmt.Sprintf("%s@example.com", strings.ToLower(t.Name())),
		Password: "correct-horse",
		Name:     "Test Patient",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d: %s", resp.StatusCode, body)
	}
	var parsed AuthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("parse register response: %v", err)
	}
	return parsed.Tokens.AccessToken, parsed
}

func TestRegisterThenLogin(t *testing.T) {
	srv := newTestServer(t)
	_, created := registerUser(t, srv.URL)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/login", "", LoginRequest{
		Email:    created.User.Email,
		Password: "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d: %s", resp.StatusCode, body)
	}

	var parsed AuthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("parse login response: %v", err)
	}
	if parsed.User.ID != created.User.ID {
		t.Errorf("login returned user %q, registered %q", parsed.User.ID, created.User.ID)
	}
	if parsed.Tokens.AccessToken == "" || parsed.Tokens.RefreshToken == "" {
		t.Error("expected both tokens in login response")
	}
	if parsed.User.PasswordHash != "" {
		t.Error("password hash leaked in response")
	}
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	srv := newTestServer(t)
	_, created := registerUser(t, srv.URL)

	resp, _ := postJSON(t, srv.URL+"/api/v1/auth/login", "", LoginRequest{
		Email:    created.User.Email,
		Password: "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRefreshIssuesNewTokens(t *testing.T) {
	srv := newTestServer(t)
	_, created := registerUser(t, srv.URL)

	resp, body := postJSON(t, srv.URL+"/api/v1/auth/refresh", "", RefreshRequest{
		RefreshToken: created.Tokens.RefreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("parse refresh response: %v", err)
	}
	if parsed.Tokens.AccessToken == "" {
		t.Error("expected a new access token")
	}
}

func TestProfileRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/profile")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerUser(t, srv.URL)

	put, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/profile",
		strings.NewReader(`{"age":34,"conditions":"mild asthma"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	put.Header.Set("Content-Type", "application/json")
	put.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(put)
	if err != nil {
		t.Fatalf("put profile: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put profile returned %d", resp.StatusCode)
	}

	get, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/profile", nil)
	get.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(get)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var profile entities.HealthProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	if profile.Age != 34 || profile.Conditions != "mild asthma" {
		t.Errorf("profile did not round-trip: %+v", profile)
	}
}

func TestChatTurnCreatesSession(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerUser(t, srv.URL)

	resp, body := postJSON(t, srv.URL+"/api/v1/medical/chat", token, ChatRequest{
		Message: "I have a persistent cough.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat returned %d: %s", resp.StatusCode, body)
	}

	var reply usecase.ChatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if reply.SessionID == "" {
		t.Error("expected a session id on the reply")
	}
	if !strings.Contains(reply.Text, "persistent cough") {
		t.Errorf("reply does not echo the input: %q", reply.Text)
	}
}

func TestChatRejectsUnknownDomain(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerUser(t, srv.URL)

	resp, _ := postJSON(t, srv.URL+"/api/v1/cooking/chat", token, ChatRequest{Message: "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestShareRecordBuildsShareableText(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerUser(t, srv.URL)

	record := usecase.Record{
		Kind: usecase.RecordPrescription,
		Prescription: &extract.Prescription{
			Symptoms:  "Persistent cough",
			Diagnosis: "Likely a viral infection",
		},
	}
	resp, body := postJSON(t, srv.URL+"/api/v1/records/share", token, record)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share returned %d: %s", resp.StatusCode, body)
	}

	var share ShareResponse
	if err := json.Unmarshal(body, &share); err != nil {
		t.Fatalf("parse share response: %v", err)
	}
	if !strings.Contains(share.Text, "Persistent cough") {
		t.Errorf("share text missing record content: %q", share.Text)
	}
	if !strings.HasPrefix(share.Link, "https://wa.me/?text=") {
		t.Errorf("unexpected share link: %q", share.Link)
	}
}

func TestDocumentOwnershipEnforced(t *testing.T) {
	srv := newTestServer(t)
	token, _ := registerUser(t, srv.URL)

	req, _ := http.NewRequest(http.MethodGet,
		srv.URL+"/api/v1/documents/presign?key=someone-else/report.pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
