package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain/repositories"
)

// MockSpeech is a development stand-in for when Google Cloud credentials
// are not configured. It emits a fixed transcript for any audio.
type MockSpeech struct {
	logger *zap.Logger
}

func NewMockSpeech(logger *zap.Logger) *MockSpeech {
	return &MockSpeech{logger: logger}
}

func (m *MockSpeech) TranscribeAudio(_ context.Context, audioData []byte, _ repositories.AudioConfig) (string, error) {
	m.logger.Info("mock transcription", zap.Int("audio_bytes", len(audioData)))
	return "I have a question about my health.", nil
}

func (m *MockSpeech) InitTranscribeStreaming(_ context.Context, _ repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	return &mockStream{results: make(chan repositories.RecognitionResult, 4)}, nil
}

type mockStream struct {
	results chan repositories.RecognitionResult
	fed     bool
}

func (m *mockStream) Stream(data []byte) error {
	if len(data) > 0 && !m.fed {
		m.fed = true
		m.results <- repositories.RecognitionResult{Text: "I have a question", Final: false}
		m.results <- repositories.RecognitionResult{Text: "I have a question about my health.", Final: true}
	}
	return nil
}

func (m *mockStream) Results() <-chan repositories.RecognitionResult {
	return m.results
}

func (m *mockStream) Close() error {
	close(m.results)
	return nil
}

var _ repositories.SpeechToText = &GoogleSpeech{}
var _ repositories.SpeechToText = &MockSpeech{}
