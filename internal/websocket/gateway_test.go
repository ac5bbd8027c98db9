package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/arimedika/server/adapters/stt"
	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/voice"
	"github.com/arimedika/server/usecase"
)

type stubCompleter struct{}

func (stubCompleter) Complete(_ context.Context, req repositories.ChatRequest) (string, error) {
	return "You asked: " + req.Input, nil
}

type stubUserRepo struct{}

func (stubUserRepo) Create(context.Context, *entities.User) error { return nil }
func (stubUserRepo) GetByID(context.Context, string) (*entities.User, error) {
	return nil, nil
}
func (stubUserRepo) GetByEmail(context.Context, string) (*entities.User, error) {
	return nil, nil
}
func (stubUserRepo) UpsertProfile(context.Context, *entities.HealthProfile) error { return nil }
func (stubUserRepo) GetProfile(context.Context, string) (*entities.HealthProfile, error) {
	return nil, nil
}

type stubSessionRepo struct{}

func (stubSessionRepo) Upsert(context.Context, *entities.Session) error { return nil }
func (stubSessionRepo) GetByID(context.Context, string) (*entities.Session, error) {
	return nil, nil
}
func (stubSessionRepo) ListByDomain(context.Context, string, entities.ChatDomain) ([]*entities.Session, error) {
	return nil, nil
}
func (stubSessionRepo) Delete(context.Context, string) error { return nil }

type stubMirror struct{}

func (stubMirror) SaveActive(context.Context, string, entities.ChatDomain, *entities.Session) error {
	return nil
}
func (stubMirror) LoadActive(context.Context, string, entities.ChatDomain) (*entities.Session, error) {
	return nil, nil
}
func (stubMirror) Clear(context.Context, string, entities.ChatDomain) error { return nil }

// hintRecorder records the audio configuration each recognition call was
// started with.
type hintRecorder struct {
	mu  sync.Mutex
	cfg repositories.AudioConfig
}

func (h *hintRecorder) TranscribeAudio(_ context.Context, _ []byte, cfg repositories.AudioConfig) (string, error) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return "", nil
}

func (h *hintRecorder) InitTranscribeStreaming(_ context.Context, cfg repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return &hintStream{results: make(chan repositories.RecognitionResult, 1)}, nil
}

func (h *hintRecorder) lastConfig() repositories.AudioConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

type hintStream struct {
	results chan repositories.RecognitionResult
	once    sync.Once
}

func (s *hintStream) Stream([]byte) error                            { return nil }
func (s *hintStream) Results() <-chan repositories.RecognitionResult { return s.results }
func (s *hintStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}

func dialGateway(t *testing.T) *gorilla.Conn {
	t.Helper()
	return dialGatewayWith(t, stt.NewMockSpeech(zaptest.NewLogger(t)))
}

func dialGatewayWith(t *testing.T, speech repositories.SpeechToText) *gorilla.Conn {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sessions := usecase.NewSessionManager(stubSessionRepo{}, stubMirror{}, time.Hour, logger)
	chat := usecase.NewChatService(stubCompleter{}, stubUserRepo{}, logger)
	gateway := NewGateway(sessions, chat, speech, nil, logger)

	e := echo.New()
	e.GET("/ws/voice", func(c echo.Context) error {
		return gateway.Handle(c, "user-1")
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice?domain=medical"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips intermediate events until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *gorilla.Conn, wantType string) *ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", wantType, err)
		}
		if msg.Type == wantType {
			return &msg
		}
		if msg.Type == TypeError {
			t.Fatalf("waiting for %q, got error: %s", wantType, msg.Message)
		}
	}
}

func send(t *testing.T, conn *gorilla.Conn, msg *ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestVoiceProtocolFullTurn(t *testing.T) {
	conn := dialGateway(t)

	send(t, conn, &ClientMessage{Type: TypeStart})
	if state := readUntil(t, conn, TypeState); state.State != "recording" {
		t.Fatalf("expected recording state, got %s", state.State)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("fake audio bytes"))
	send(t, conn, &ClientMessage{Type: TypeAudio, Audio: audio})

	// The mock recognizer finalizes after the first chunk; give the
	// result pump a moment before stopping.
	time.Sleep(100 * time.Millisecond)
	send(t, conn, &ClientMessage{Type: TypeStop})

	transcript := readUntil(t, conn, TypeTranscript)
	for !transcript.Final {
		transcript = readUntil(t, conn, TypeTranscript)
	}
	if transcript.Text != "I have a question about my health." {
		t.Fatalf("unexpected transcript: %q", transcript.Text)
	}

	send(t, conn, &ClientMessage{Type: TypeSend})
	reply := readUntil(t, conn, TypeReply)
	if reply.Reply == nil || !strings.Contains(reply.Reply.Text, "I have a question about my health.") {
		t.Fatalf("unexpected reply: %+v", reply.Reply)
	}
}

func TestVoiceProtocolEditBeforeSend(t *testing.T) {
	conn := dialGateway(t)

	send(t, conn, &ClientMessage{Type: TypeStart})
	readUntil(t, conn, TypeState)

	audio := base64.StdEncoding.EncodeToString([]byte("fake audio bytes"))
	send(t, conn, &ClientMessage{Type: TypeAudio, Audio: audio})
	time.Sleep(100 * time.Millisecond)
	send(t, conn, &ClientMessage{Type: TypeStop})
	frozen := readUntil(t, conn, TypeTranscript)
	for !frozen.Final {
		frozen = readUntil(t, conn, TypeTranscript)
	}

	send(t, conn, &ClientMessage{Type: TypeEdit, Text: "My edited question."})
	edited := readUntil(t, conn, TypeTranscript)
	for !edited.Final {
		edited = readUntil(t, conn, TypeTranscript)
	}
	if edited.Text != "My edited question." {
		t.Fatalf("unexpected edited transcript: %q", edited.Text)
	}

	send(t, conn, &ClientMessage{Type: TypeSend})
	reply := readUntil(t, conn, TypeReply)
	if reply.Reply == nil || !strings.Contains(reply.Reply.Text, "My edited question.") {
		t.Fatalf("expected reply to use edited text, got %+v", reply.Reply)
	}
}

func TestStartFrameHintsReachRecognizer(t *testing.T) {
	recorder := &hintRecorder{}
	conn := dialGatewayWith(t, recorder)

	send(t, conn, &ClientMessage{
		Type:       TypeStart,
		Language:   "id-ID",
		SampleRate: 8000,
		Encoding:   "LINEAR16",
	})
	if state := readUntil(t, conn, TypeState); state.State != "recording" {
		t.Fatalf("expected recording state, got %s", state.State)
	}

	cfg := recorder.lastConfig()
	if cfg.SampleRate != 8000 {
		t.Errorf("expected hinted sample rate 8000, got %d", cfg.SampleRate)
	}
	if cfg.Encoding != "LINEAR16" {
		t.Errorf("expected hinted encoding LINEAR16, got %q", cfg.Encoding)
	}
	if cfg.Language != "id-ID" {
		t.Errorf("expected hinted language id-ID, got %q", cfg.Language)
	}
}

func TestStartFrameWithoutHintsUsesDefaults(t *testing.T) {
	recorder := &hintRecorder{}
	conn := dialGatewayWith(t, recorder)

	send(t, conn, &ClientMessage{Type: TypeStart})
	readUntil(t, conn, TypeState)

	cfg := recorder.lastConfig()
	if cfg.SampleRate != defaultSampleRate || cfg.Encoding != defaultEncoding {
		t.Errorf("expected default audio config, got %+v", cfg)
	}
	if cfg.Language != voice.DefaultLanguage {
		t.Errorf("expected default language, got %q", cfg.Language)
	}
}

func TestVoiceProtocolDiscard(t *testing.T) {
	conn := dialGateway(t)

	send(t, conn, &ClientMessage{Type: TypeStart})
	readUntil(t, conn, TypeState)

	send(t, conn, &ClientMessage{Type: TypeDiscard})
	state := readUntil(t, conn, TypeState)
	if state.State != "idle" {
		t.Fatalf("expected idle after discard, got %s", state.State)
	}
}

func TestVoiceProtocolRejectsUnknownDomain(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sessions := usecase.NewSessionManager(stubSessionRepo{}, stubMirror{}, time.Hour, logger)
	chat := usecase.NewChatService(stubCompleter{}, stubUserRepo{}, logger)
	gateway := NewGateway(sessions, chat, stt.NewMockSpeech(logger), nil, logger)

	e := echo.New()
	e.GET("/ws/voice", func(c echo.Context) error {
		return gateway.Handle(c, "user-1")
	})
	server := httptest.NewServer(e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice?domain=bogus"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown domain")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 response, got %+v", resp)
	}
}
