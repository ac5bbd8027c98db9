package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultModelID      = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"
	defaultChunkSize    = 4096
	defaultStability    = 0.5
	defaultClarity      = 0.75
)

// Config holds the ElevenLabs adapter settings. Only the API key is
// required; zero values fall back to the documented defaults.
type Config struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// ElevenLabs implements TextToSpeech over the ElevenLabs streaming API.
// The request is made synchronously so upstream failures surface as a
// ServiceError before any audio flows; the response body then streams
// through the returned channel.
type ElevenLabs struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabs)(nil)

func NewElevenLabs(config Config, logger *zap.Logger) (*ElevenLabs, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}

	return &ElevenLabs{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ConvertTextToSpeech synthesizes text in the given language and streams
// the audio in chunks. The language is a BCP-47 tag; its primary subtag is
// passed upstream.
func (e *ElevenLabs) ConvertTextToSpeech(ctx context.Context, text, language string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:         text,
		ModelID:      e.config.ModelID,
		LanguageCode: primarySubtag(language),
		VoiceSettings: voiceSettings{
			Stability:       e.config.Stability,
			SimilarityBoost: e.config.Clarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s",
		e.config.APIBaseURL, e.config.VoiceID, e.config.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &domain.ServiceError{
			Service: "elevenlabs",
			Status:  resp.StatusCode,
			Body:    string(errorBody),
		}
	}

	out := make(chan []byte, 10)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		buffer := make([]byte, e.config.ChunkSize)
		total := 0
		for {
			n, err := resp.Body.Read(buffer)
			if n > 0 {
				total += n
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				e.logger.Debug("synthesis stream finished", zap.Int("total_bytes", total))
				return
			}
			if err != nil {
				e.logger.Warn("error reading synthesis stream", zap.Error(err))
				return
			}
		}
	}()

	return out, nil
}

// primarySubtag reduces a BCP-47 tag like "en-US" to "en".
func primarySubtag(language string) string {
	if i := strings.IndexByte(language, '-'); i > 0 {
		return language[:i]
	}
	return language
}
