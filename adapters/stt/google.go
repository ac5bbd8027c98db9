package stt

import (
	"context"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

// GoogleSpeech implements SpeechToText over Google Cloud Speech-to-Text.
// One client is shared across streams; each InitTranscribeStreaming call
// opens its own gRPC stream.
type GoogleSpeech struct {
	client *speech.Client
	logger *zap.Logger
}

func NewGoogleSpeech(ctx context.Context, logger *zap.Logger) (*GoogleSpeech, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeech{client: client, logger: logger}, nil
}

// Close releases the shared client.
func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

// TranscribeAudio performs one-shot recognition. Used as the fallback when
// streaming recognition produced no transcript for captured audio.
func (g *GoogleSpeech) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(config.SampleRate),
			LanguageCode:    config.Language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", &domain.ServiceError{Service: "speech", Body: err.Error()}
	}

	var text string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			text += result.Alternatives[0].Transcript
		}
	}
	if text == "" {
		return "", fmt.Errorf("transcribe audio: %w", domain.ErrEmptyResponse)
	}
	return text, nil
}

// InitTranscribeStreaming opens a streaming recognition session that
// reports interim results as they arrive.
func (g *GoogleSpeech) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open streaming recognize: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    config.Language,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &googleStream{
		stream:  stream,
		logger:  g.logger,
		results: make(chan repositories.RecognitionResult, 16),
	}
	go s.receive()
	return s, nil
}

type googleStream struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	logger  *zap.Logger
	results chan repositories.RecognitionResult

	closeOnce sync.Once
	closeErr  error
}

func (s *googleStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (s *googleStream) Results() <-chan repositories.RecognitionResult {
	return s.results
}

func (s *googleStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.CloseSend()
	})
	return s.closeErr
}

// receive pumps recognizer responses into the results channel, preserving
// arrival order. The channel closes when the upstream stream ends.
func (s *googleStream) receive() {
	defer close(s.results)
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Warn("streaming recognition ended", zap.Error(err))
			return
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			s.results <- repositories.RecognitionResult{
				Text:  result.Alternatives[0].Transcript,
				Final: result.IsFinal,
			}
		}
	}
}

func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
