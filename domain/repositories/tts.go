package repositories

import "context"

// TextToSpeech converts text into playable audio. Synthesis is best-effort
// narration: failures stop silently and never block further interaction.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string, language string) (<-chan []byte, error)
}
