package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/arimedika/server/usecase"
)

// Client-to-server message types.
const (
	TypeStart   = "start"
	TypeAudio   = "audio"
	TypeStop    = "stop"
	TypeEdit    = "edit"
	TypeSend    = "send"
	TypeDiscard = "discard"
)

// Server-to-client message types.
const (
	TypeState      = "state"
	TypeTranscript = "transcript"
	TypeReply      = "reply"
	TypeReplyAudio = "reply_audio"
	TypeError      = "error"
	TypeNoSpeech   = "no_speech"
)

// ClientMessage is one inbound control or audio frame.
type ClientMessage struct {
	Type string `json:"type"`
	// Language hints the recognizer on start; empty uses the default.
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	// Audio is a base64 chunk for type "audio".
	Audio string `json:"audio,omitempty"`
	// Text is the edited transcript for type "edit".
	Text string `json:"text,omitempty"`
}

// ServerMessage is one outbound event.
type ServerMessage struct {
	Type string `json:"type"`
	// State is the capture machine state after a transition.
	State string `json:"state,omitempty"`
	// Text carries the live or frozen transcript, or the reply text.
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Elapsed int    `json:"elapsed_seconds,omitempty"`
	// Reply carries the full assistant turn for type "reply".
	Reply *usecase.ChatReply `json:"reply,omitempty"`
	// Audio is a base64 chunk of synthesized narration.
	Audio   string `json:"audio,omitempty"`
	Message string `json:"message,omitempty"`
}

func parseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type")
	}
	return &msg, nil
}

func errorMessage(message string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Message: message}
}
