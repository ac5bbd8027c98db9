package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts audio data to text in one shot. Used as the
	// fallback path when streaming recognition yielded nothing.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// InitTranscribeStreaming initializes a streaming transcription session
	// that reports interim and finalized segments as they arrive.
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// RecognitionResult is one incremental recognizer update. Final results are
// committed and never revised; interim results are revisable previews of the
// currently-spoken phrase.
type RecognitionResult struct {
	Text  string
	Final bool
}

type SpeechToTextStreaming interface {
	// Stream feeds raw audio bytes to the recognizer.
	Stream(data []byte) error
	// Results delivers recognition updates in temporal order.
	Results() <-chan RecognitionResult
	// Close ends the stream and releases the underlying client.
	Close() error
}
