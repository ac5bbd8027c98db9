package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arimedika/server/domain/entities"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/voice"
	"github.com/arimedika/server/usecase"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	defaultSampleRate = 16000
	defaultEncoding   = "WEBM_OPUS"

	// liveTranscriptPeriod is how often the in-progress transcript is
	// pushed to the client while recording.
	liveTranscriptPeriod = 300 * time.Millisecond

	noSpeechMessage = "No speech detected. Try recording again."
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Gateway is the WebSocket transport around the voice capture machine. One
// connection serves one user in one conversation domain: audio chunks in,
// transcript events and assistant replies (plus optional narration) out.
type Gateway struct {
	sessions *usecase.SessionManager
	chat     *usecase.ChatService
	stt      repositories.SpeechToText
	tts      repositories.TextToSpeech
	logger   *zap.Logger
}

func NewGateway(
	sessions *usecase.SessionManager,
	chat *usecase.ChatService,
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		sessions: sessions,
		chat:     chat,
		stt:      stt,
		tts:      tts,
		logger:   logger,
	}
}

// Handle upgrades an authenticated request and serves the voice protocol
// until the peer disconnects.
func (g *Gateway) Handle(c echo.Context, userID string) error {
	domain := entities.ChatDomain(c.QueryParam("domain"))
	if domain == "" {
		domain = entities.ChatDomainMedical
	}
	if !domain.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown domain")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}

	client := &client{
		gateway:    g,
		conn:       conn,
		send:       make(chan *ServerMessage, 64),
		done:       make(chan struct{}),
		userID:     userID,
		domain:     domain,
		sampleRate: defaultSampleRate,
		encoding:   defaultEncoding,
		logger:     g.logger.With(zap.String("user_id", userID), zap.String("domain", string(domain))),
	}
	client.capture = voice.NewCapture(client, &streamingRecognizer{client: client}, client.logger)

	go client.writePump()
	client.readPump()
	return nil
}

// client is one connection. It doubles as the capture machine's audio
// device: the "microphone" is the stream of audio frames the peer sends.
type client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan *ServerMessage
	done    chan struct{}
	userID  string
	domain  entities.ChatDomain
	capture *voice.Capture
	logger  *zap.Logger

	mu         sync.Mutex
	audioIn    chan []byte
	audioOpen  bool
	sampleRate int
	encoding   string
}

// audioConfig returns the recognition parameters negotiated on the last
// start frame.
func (c *client) audioConfig(language string) repositories.AudioConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return repositories.AudioConfig{
		SampleRate: c.sampleRate,
		Encoding:   c.encoding,
		Language:   language,
	}
}

// Open implements voice.CaptureDevice. Each recording gets a fresh chunk
// channel fed by inbound audio frames.
func (c *client) Open(_ context.Context) (voice.AudioStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioIn = make(chan []byte, 64)
	c.audioOpen = true
	return &socketStream{client: c, ch: c.audioIn}, nil
}

type socketStream struct {
	client *client
	ch     chan []byte
	once   sync.Once
}

func (s *socketStream) Chunks() <-chan []byte { return s.ch }

func (s *socketStream) Close() error {
	s.once.Do(func() {
		s.client.mu.Lock()
		s.client.audioOpen = false
		s.client.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// streamingRecognizer adapts the speech adapter to the capture machine's
// recognizer interface.
type streamingRecognizer struct {
	client *client
}

func (r *streamingRecognizer) Start(ctx context.Context, language string) (repositories.SpeechToTextStreaming, error) {
	return r.client.gateway.stt.InitTranscribeStreaming(ctx, r.client.audioConfig(language))
}

func (c *client) readPump() {
	defer func() {
		c.capture.Discard()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		msg, err := parseClientMessage(data)
		if err != nil {
			c.push(errorMessage(err.Error()))
			continue
		}

		switch msg.Type {
		case TypeStart:
			c.handleStart(msg)
		case TypeAudio:
			c.handleAudio(msg.Audio)
		case TypeStop:
			c.handleStop()
		case TypeEdit:
			c.handleEdit(msg.Text)
		case TypeSend:
			c.handleSend()
		case TypeDiscard:
			c.capture.Discard()
			c.pushState()
		default:
			c.push(errorMessage("unknown message type: " + msg.Type))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// push queues an outbound message, dropping it if the writer is saturated.
func (c *client) push(msg *ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outbound message", zap.String("type", msg.Type))
	}
}

func (c *client) pushState() {
	c.push(&ServerMessage{Type: TypeState, State: c.capture.State().String()})
}

func (c *client) handleStart(msg *ClientMessage) {
	c.mu.Lock()
	if msg.SampleRate > 0 {
		c.sampleRate = msg.SampleRate
	}
	if msg.Encoding != "" {
		c.encoding = msg.Encoding
	}
	c.mu.Unlock()
	if msg.Language != "" {
		c.capture.SetPreferredLanguage(msg.Language)
	}

	if err := c.capture.Start(context.Background()); err != nil {
		c.push(errorMessage(err.Error()))
		return
	}
	c.pushState()
	go c.streamLiveTranscript()
}

func (c *client) handleAudio(encoded string) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.push(errorMessage("malformed audio chunk"))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.audioOpen {
		return
	}
	select {
	case c.audioIn <- data:
	default:
		// The capture pump is behind; dropping a frame beats stalling
		// the read loop.
	}
}

func (c *client) handleStop() {
	if err := c.capture.Stop(); err != nil {
		c.push(errorMessage(err.Error()))
		return
	}

	// Streaming recognition yielded nothing; fall back to a one-shot
	// transcription of the captured audio.
	if pending := c.capture.PendingAudio(); len(pending) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		text, err := c.gateway.stt.TranscribeAudio(ctx, pending, c.audioConfig(c.capture.Language()))
		cancel()
		if err != nil {
			c.logger.Warn("fallback transcription failed", zap.Error(err))
		} else {
			c.capture.SetTranscript(text)
		}
	}

	if !c.capture.HasSpeech() {
		c.capture.Discard()
		c.push(&ServerMessage{Type: TypeNoSpeech, Message: noSpeechMessage})
		c.pushState()
		return
	}

	c.push(&ServerMessage{Type: TypeTranscript, Text: c.capture.Transcript(), Final: true})
	c.pushState()
}

func (c *client) handleEdit(text string) {
	if err := c.capture.BeginEdit(); err != nil {
		c.push(errorMessage(err.Error()))
		return
	}
	if err := c.capture.SaveEdit(text); err != nil {
		c.push(errorMessage(err.Error()))
		return
	}
	c.push(&ServerMessage{Type: TypeTranscript, Text: c.capture.Transcript(), Final: true})
	c.pushState()
}

func (c *client) handleSend() {
	language := c.capture.Language()
	text, err := c.capture.Send()
	if err != nil {
		c.push(errorMessage(err.Error()))
		return
	}
	c.pushState()

	ctx := context.Background()
	store := c.gateway.sessions.Store(ctx, c.userID, c.domain)
	active := store.ActiveSession()
	if active == nil {
		store.StartSession()
		active = store.ActiveSession()
	}

	reply, err := c.gateway.chat.SendMessage(ctx, store, active.ID, text, language)
	if err != nil {
		c.push(errorMessage("failed to process message"))
		c.logger.Warn("voice chat turn failed", zap.Error(err))
		return
	}
	c.push(&ServerMessage{Type: TypeReply, Reply: reply})

	if c.gateway.tts != nil {
		go c.narrate(reply.Text, language)
	}
}

// narrate streams synthesized audio for a reply. Best effort: failures are
// logged and the conversation continues without narration.
func (c *client) narrate(text, language string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	chunks, err := c.gateway.tts.ConvertTextToSpeech(ctx, text, language)
	if err != nil {
		c.logger.Warn("narration failed", zap.Error(err))
		return
	}
	for chunk := range chunks {
		c.push(&ServerMessage{
			Type:  TypeReplyAudio,
			Audio: base64.StdEncoding.EncodeToString(chunk),
		})
	}
	c.push(&ServerMessage{Type: TypeReplyAudio, Final: true})
}

// streamLiveTranscript pushes the in-progress transcript while recording.
func (c *client) streamLiveTranscript() {
	ticker := time.NewTicker(liveTranscriptPeriod)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.capture.State() != voice.StateRecording {
				return
			}
			live := c.capture.LiveTranscript()
			if live == last {
				continue
			}
			last = live
			c.push(&ServerMessage{
				Type:    TypeTranscript,
				Text:    live,
				Elapsed: c.capture.ElapsedSeconds(),
			})
		}
	}
}
