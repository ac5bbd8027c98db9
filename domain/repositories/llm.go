package repositories

import "context"

// ChatCompleter abstracts the chat-completion provider. One request, one
// response: no retries, no backoff. A non-2xx upstream response surfaces as
// *domain.ServiceError; a 2xx response with no usable text surfaces as
// domain.ErrEmptyResponse. Callers convert both into a user-visible
// fallback assistant message.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// VisionAnalyzer is the image-analysis variant of ChatCompleter. The image
// travels inline as raw bytes plus its MIME type.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, req VisionRequest) (string, error)
}

// ChatRequest carries the full prompt for one model call.
type ChatRequest struct {
	SystemPrompt string
	// Context is the bounded conversation context produced by the session
	// store (recent turns plus cross-session digests).
	Context string
	History []ChatMessage
	Input   string
}

// VisionRequest carries a prompt plus one inline image.
type VisionRequest struct {
	SystemPrompt string
	Input        string
	ImageData    []byte
	ImageMIME    string
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
