// Package voice implements the capture state machine that coordinates
// microphone acquisition, incremental speech-to-text accumulation, user
// review and editing, and submission.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

// State is the capture machine state. Idle is initial; send and discard
// both return to Idle, there is no terminal state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateReviewing
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateReviewing:
		return "reviewing"
	case StateEditing:
		return "editing"
	default:
		return "idle"
	}
}

// CaptureDevice acquires the raw audio source. Open fails with
// domain.ErrPermissionDenied when access is refused.
type CaptureDevice interface {
	Open(ctx context.Context) (AudioStream, error)
}

// AudioStream delivers raw captured audio chunks until closed. The channel
// closing while a recording is still active is treated as an unrecoverable
// capture error.
type AudioStream interface {
	Chunks() <-chan []byte
	Close() error
}

// Recognizer starts a streaming speech recognition session.
type Recognizer interface {
	Start(ctx context.Context, language string) (repositories.SpeechToTextStreaming, error)
}

// Capture drives one recording at a time. Finalized segments are strictly
// appended in arrival order; the interim segment is always the latest
// revisable preview. All accumulated state is reset on every Start.
type Capture struct {
	mic        CaptureDevice
	recognizer Recognizer
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	finalSegs   []string
	interim     string
	frozen      string
	editBackup  string
	language    string
	rawAudio    bytes.Buffer
	pendingWAV  []byte
	elapsedSec  int
	lastErr     error
	stopping    bool
	stream      AudioStream
	recStream   repositories.SpeechToTextStreaming
	tickerDone  chan struct{}
	gen         int
	defaultLang string
}

// NewCapture creates an idle capture machine.
func NewCapture(mic CaptureDevice, recognizer Recognizer, logger *zap.Logger) *Capture {
	return &Capture{
		mic:         mic,
		recognizer:  recognizer,
		logger:      logger,
		state:       StateIdle,
		language:    DefaultLanguage,
		defaultLang: DefaultLanguage,
	}
}

// Start transitions Idle -> Recording. Accumulated transcript state is
// reset before the microphone is acquired; on a permission or stream error
// the machine stays Idle with everything released.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("cannot start recording from state %s", c.state)
	}

	c.resetLocked()

	stream, err := c.mic.Open(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return fmt.Errorf("microphone access: %w", err)
		}
		return fmt.Errorf("failed to open capture device: %w", err)
	}
	c.stream = stream

	recStream, err := c.recognizer.Start(ctx, c.language)
	if err != nil {
		// The streaming recognizer being unavailable is not fatal: raw
		// audio capture still runs and feeds the fallback transcription.
		c.logger.Warn("streaming recognizer unavailable, raw capture only", zap.Error(err))
		c.recStream = nil
	} else {
		c.recStream = recStream
	}

	c.state = StateRecording
	c.stopping = false
	c.tickerDone = make(chan struct{})

	// Pumps from a previous recording may still be draining their channels;
	// the generation check keeps them from touching this recording's state.
	c.gen++
	go c.pumpAudio(stream, c.gen)
	if c.recStream != nil {
		go c.pumpResults(c.recStream, c.gen)
	}
	go c.runTicker(c.tickerDone)

	return nil
}

// Stop transitions Recording -> Reviewing. Both capture processes and the
// duration counter stop; the transcript freezes as the concatenation of all
// finalized segments, falling back to interim text if nothing was ever
// finalized. An empty freeze with captured audio bytes queues the audio for
// a fallback transcription call instead of discarding the attempt.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return fmt.Errorf("cannot stop from state %s", c.state)
	}

	c.stopping = true
	c.releaseLocked()

	c.frozen = strings.TrimSpace(strings.Join(c.finalSegs, " "))
	if c.frozen == "" {
		c.frozen = strings.TrimSpace(c.interim)
	}
	if c.frozen == "" && c.rawAudio.Len() > 0 {
		c.pendingWAV = append([]byte(nil), c.rawAudio.Bytes()...)
	}

	c.state = StateReviewing
	return nil
}

// PendingAudio returns the raw audio queued for fallback transcription, or
// nil when the streaming recognizer already produced text.
func (c *Capture) PendingAudio() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingWAV
}

// SetTranscript installs the result of a fallback transcription while
// reviewing.
func (c *Capture) SetTranscript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing {
		return
	}
	c.frozen = strings.TrimSpace(text)
	c.pendingWAV = nil
	c.language = Detect(c.frozen, c.defaultLang)
}

// HasSpeech reports whether the frozen transcript or queued audio holds
// anything usable. When false on stop, the caller discards with a distinct
// no-speech message.
func (c *Capture) HasSpeech() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen != "" || len(c.pendingWAV) > 0
}

// BeginEdit transitions Reviewing -> Editing, exposing the frozen text for
// in-place modification.
func (c *Capture) BeginEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing {
		return fmt.Errorf("cannot edit from state %s", c.state)
	}
	c.editBackup = c.frozen
	c.state = StateEditing
	return nil
}

// SaveEdit replaces the frozen text with the edited text and returns to
// Reviewing.
func (c *Capture) SaveEdit(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEditing {
		return fmt.Errorf("cannot save edit from state %s", c.state)
	}
	c.frozen = strings.TrimSpace(text)
	c.language = Detect(c.frozen, c.defaultLang)
	c.state = StateReviewing
	return nil
}

// CancelEdit discards the edit, reverting to the previously frozen text.
func (c *Capture) CancelEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEditing {
		return fmt.Errorf("cannot cancel edit from state %s", c.state)
	}
	c.frozen = c.editBackup
	c.state = StateReviewing
	return nil
}

// Send returns the frozen (or edited) text and resets all capture state.
// The caller appends the text as a user message and triggers the model
// call.
func (c *Capture) Send() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing {
		return "", fmt.Errorf("cannot send from state %s", c.state)
	}
	text := c.frozen
	if text == "" {
		return "", errors.New("nothing to send")
	}
	c.resetLocked()
	c.state = StateIdle
	return text, nil
}

// Discard resets all capture state from any state, releasing resources if
// a recording is active.
func (c *Capture) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRecording {
		c.stopping = true
		c.releaseLocked()
	}
	c.resetLocked()
	c.state = StateIdle
}

// State returns the current machine state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the frozen transcript under review.
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// LiveTranscript is the displayed text during recording: all finalized
// segments joined, plus the current interim segment.
func (c *Capture) LiveTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked()
}

// SetPreferredLanguage overrides the default recognition language. The
// preference survives resets and remains the detector's fallback; content
// detection can still switch away from it.
func (c *Capture) SetPreferredLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lang == "" {
		return
	}
	c.defaultLang = lang
	if c.state == StateIdle {
		c.language = lang
	}
}

// Language returns the detected language code.
func (c *Capture) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// ElapsedSeconds returns the recording duration at one-second granularity.
func (c *Capture) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedSec
}

// LastError returns the most recent unrecoverable capture error, if any.
func (c *Capture) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Capture) liveLocked() string {
	joined := strings.Join(c.finalSegs, " ")
	if c.interim == "" {
		return joined
	}
	if joined == "" {
		return c.interim
	}
	return joined + " " + c.interim
}

func (c *Capture) pumpAudio(stream AudioStream, gen int) {
	for chunk := range stream.Chunks() {
		c.mu.Lock()
		if c.state == StateRecording && c.gen == gen {
			c.rawAudio.Write(chunk)
			if c.recStream != nil {
				if err := c.recStream.Stream(chunk); err != nil {
					c.logger.Warn("failed to feed recognizer", zap.Error(err))
				}
			}
		}
		c.mu.Unlock()
	}
	// Channel closed. If that happened mid-recording it is a stream error.
	c.failIfRecording(errors.New("audio stream ended unexpectedly"), gen)
}

func (c *Capture) pumpResults(rec repositories.SpeechToTextStreaming, gen int) {
	for res := range rec.Results() {
		c.mu.Lock()
		if c.state == StateRecording && c.gen == gen {
			if res.Final {
				// Finalized segments arrive in temporal order and are never
				// reordered or merged.
				c.finalSegs = append(c.finalSegs, strings.TrimSpace(res.Text))
				c.interim = ""
			} else {
				c.interim = res.Text
			}
			c.language = Detect(c.liveLocked(), c.defaultLang)
		}
		c.mu.Unlock()
	}
}

func (c *Capture) failIfRecording(err error, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording || c.stopping || c.gen != gen {
		return
	}
	c.logger.Warn("capture failed mid-recording", zap.Error(err))
	c.stopping = true
	c.releaseLocked()
	c.resetLocked()
	c.state = StateIdle
	c.lastErr = err
}

func (c *Capture) runTicker(done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateRecording {
				c.elapsedSec++
			}
			c.mu.Unlock()
		}
	}
}

// releaseLocked stops the audio stream, recognizer stream, and duration
// counter. Called on every exit path from Recording, including errors, so
// no media resource leaks across attempts.
func (c *Capture) releaseLocked() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("failed to close audio stream", zap.Error(err))
		}
		c.stream = nil
	}
	if c.recStream != nil {
		if err := c.recStream.Close(); err != nil {
			c.logger.Warn("failed to close recognizer stream", zap.Error(err))
		}
		c.recStream = nil
	}
	if c.tickerDone != nil {
		close(c.tickerDone)
		c.tickerDone = nil
	}
}

func (c *Capture) resetLocked() {
	c.finalSegs = nil
	c.interim = ""
	c.frozen = ""
	c.editBackup = ""
	c.pendingWAV = nil
	c.rawAudio.Reset()
	c.elapsedSec = 0
	c.lastErr = nil
	c.language = c.defaultLang
}
