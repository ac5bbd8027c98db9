package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

type fakeStream struct {
	ch        chan []byte
	closeOnce sync.Once
	mu        sync.Mutex
	closed    int
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan []byte, 8)}
}

func (f *fakeStream) Chunks() <-chan []byte { return f.ch }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.ch) })
	return nil
}

func (f *fakeStream) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDevice struct {
	stream *fakeStream
	err    error
	opens  int
}

func (d *fakeDevice) Open(ctx context.Context) (AudioStream, error) {
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	d.stream = newFakeStream()
	return d.stream, nil
}

type fakeRecStream struct {
	results   chan repositories.RecognitionResult
	closeOnce sync.Once
	mu        sync.Mutex
	closed    int
	streamed  int
}

func newFakeRecStream() *fakeRecStream {
	return &fakeRecStream{results: make(chan repositories.RecognitionResult, 8)}
}

func (f *fakeRecStream) Stream(data []byte) error {
	f.mu.Lock()
	f.streamed++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecStream) Results() <-chan repositories.RecognitionResult { return f.results }

func (f *fakeRecStream) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.results) })
	return nil
}

func (f *fakeRecStream) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeRecStream) streamedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamed
}

type fakeRecognizer struct {
	stream *fakeRecStream
	err    error
}

func (r *fakeRecognizer) Start(ctx context.Context, language string) (repositories.SpeechToTextStreaming, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.stream = newFakeRecStream()
	return r.stream, nil
}

func newTestCapture(t *testing.T) (*Capture, *fakeDevice, *fakeRecognizer) {
	device := &fakeDevice{}
	recognizer := &fakeRecognizer{}
	return NewCapture(device, recognizer, zaptest.NewLogger(t)), device, recognizer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestStartResetsAccumulatedState(t *testing.T) {
	capture, _, recognizer := newTestCapture(t)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	recognizer.stream.results <- repositories.RecognitionResult{Text: "leftover words", Final: true}
	waitFor(t, "segment", func() bool { return capture.LiveTranscript() == "leftover words" })

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := capture.Send(); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// A new recording must begin with zero accumulated transcript state.
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}
	if capture.LiveTranscript() != "" {
		t.Errorf("Expected empty transcript after restart, got %q", capture.LiveTranscript())
	}
	if capture.ElapsedSeconds() != 0 {
		t.Errorf("Expected elapsed reset, got %d", capture.ElapsedSeconds())
	}
	capture.Discard()
}

func TestStartPermissionDenied(t *testing.T) {
	capture, device, _ := newTestCapture(t)
	device.err = domain.ErrPermissionDenied

	err := capture.Start(context.Background())
	if err == nil {
		t.Fatal("Expected error when microphone access is denied")
	}
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
	if capture.State() != StateIdle {
		t.Errorf("Expected state Idle after denial, got %s", capture.State())
	}
}

func TestFinalSegmentsAppendInArrivalOrder(t *testing.T) {
	capture, _, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	recognizer.stream.results <- repositories.RecognitionResult{Text: "I have", Final: true}
	recognizer.stream.results <- repositories.RecognitionResult{Text: "a headache", Final: true}
	recognizer.stream.results <- repositories.RecognitionResult{Text: "and fev", Final: false}

	waitFor(t, "live transcript", func() bool {
		return capture.LiveTranscript() == "I have a headache and fev"
	})

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := capture.Transcript(); got != "I have a headache" {
		t.Errorf("Expected frozen finalized segments only, got %q", got)
	}
	capture.Discard()
}

func TestStopFreezesInterimWhenNoFinalSegments(t *testing.T) {
	capture, _, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	recognizer.stream.results <- repositories.RecognitionResult{Text: "hello world", Final: false}
	waitFor(t, "interim", func() bool { return capture.LiveTranscript() == "hello world" })

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := capture.Transcript(); got != "hello world" {
		t.Errorf("Expected interim frozen as final transcript, got %q", got)
	}
	capture.Discard()
}

func TestStopQueuesRawAudioForFallback(t *testing.T) {
	capture, device, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	device.stream.ch <- []byte{1, 2, 3, 4}
	waitFor(t, "audio chunk", func() bool { return recognizer.stream.streamedCount() == 1 })

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(capture.PendingAudio()) != 4 {
		t.Fatalf("Expected 4 queued audio bytes, got %d", len(capture.PendingAudio()))
	}
	if !capture.HasSpeech() {
		t.Error("Expected queued audio to count as usable speech")
	}

	capture.SetTranscript("transcribed by fallback")
	if capture.Transcript() != "transcribed by fallback" {
		t.Errorf("Expected fallback transcript, got %q", capture.Transcript())
	}
	if capture.PendingAudio() != nil {
		t.Error("Expected queued audio cleared after fallback transcription")
	}
	capture.Discard()
}

func TestEditSaveAndCancel(t *testing.T) {
	capture, _, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	recognizer.stream.results <- repositories.RecognitionResult{Text: "original text", Final: true}
	waitFor(t, "segment", func() bool { return capture.LiveTranscript() == "original text" })
	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := capture.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit failed: %v", err)
	}
	if err := capture.SaveEdit("edited text"); err != nil {
		t.Fatalf("SaveEdit failed: %v", err)
	}
	if capture.Transcript() != "edited text" {
		t.Errorf("Expected edited transcript, got %q", capture.Transcript())
	}

	if err := capture.BeginEdit(); err != nil {
		t.Fatalf("Second BeginEdit failed: %v", err)
	}
	if err := capture.SaveEdit("will be reverted"); err != nil {
		t.Fatalf("SaveEdit failed: %v", err)
	}
	if err := capture.BeginEdit(); err != nil {
		t.Fatalf("Third BeginEdit failed: %v", err)
	}
	if err := capture.CancelEdit(); err != nil {
		t.Fatalf("CancelEdit failed: %v", err)
	}
	if capture.Transcript() != "will be reverted" {
		t.Errorf("Expected cancel to revert to previous frozen text, got %q", capture.Transcript())
	}
	capture.Discard()
}

func TestSendReturnsTextAndResets(t *testing.T) {
	capture, _, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	recognizer.stream.results <- repositories.RecognitionResult{Text: "send me", Final: true}
	waitFor(t, "segment", func() bool { return capture.LiveTranscript() == "send me" })
	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	text, err := capture.Send()
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if text != "send me" {
		t.Errorf("Expected sent text 'send me', got %q", text)
	}
	if capture.State() != StateIdle {
		t.Errorf("Expected Idle after send, got %s", capture.State())
	}
	if capture.Transcript() != "" {
		t.Errorf("Expected transcript cleared after send, got %q", capture.Transcript())
	}
}

func TestStopReleasesResources(t *testing.T) {
	capture, device, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if device.stream.closedCount() == 0 {
		t.Error("Expected audio stream closed on stop")
	}
	if recognizer.stream.closedCount() == 0 {
		t.Error("Expected recognizer stream closed on stop")
	}
	capture.Discard()
}

func TestDiscardMidRecordingReleasesResources(t *testing.T) {
	capture, device, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	capture.Discard()

	if capture.State() != StateIdle {
		t.Errorf("Expected Idle after discard, got %s", capture.State())
	}
	if device.stream.closedCount() == 0 {
		t.Error("Expected audio stream closed on discard")
	}
	if recognizer.stream.closedCount() == 0 {
		t.Error("Expected recognizer stream closed on discard")
	}
}

func TestStreamErrorMidRecordingReleasesResources(t *testing.T) {
	capture, device, recognizer := newTestCapture(t)
	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Simulate the capture stream dying without a stop.
	device.stream.closeOnce.Do(func() { close(device.stream.ch) })

	waitFor(t, "failure handling", func() bool { return capture.State() == StateIdle })

	if recognizer.stream.closedCount() == 0 {
		t.Error("Expected recognizer stream closed after capture failure")
	}
	if capture.LastError() == nil {
		t.Error("Expected capture failure recorded")
	}
}

// leakyStream ignores Close, modeling a device that keeps delivering
// buffered chunks after release.
type leakyStream struct {
	ch chan []byte
}

func (l *leakyStream) Chunks() <-chan []byte { return l.ch }
func (l *leakyStream) Close() error          { return nil }

type leakyDevice struct {
	streams []*leakyStream
}

func (d *leakyDevice) Open(ctx context.Context) (AudioStream, error) {
	s := &leakyStream{ch: make(chan []byte, 8)}
	d.streams = append(d.streams, s)
	return s, nil
}

func TestStragglingPumpCannotTouchRestartedRecording(t *testing.T) {
	device := &leakyDevice{}
	recognizer := &fakeRecognizer{err: errors.New("recognizer down")}
	capture := NewCapture(device, recognizer, zaptest.NewLogger(t))

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	capture.Discard()

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	// The first recording's stream delivers a late chunk and then dies.
	stale := device.streams[0]
	stale.ch <- []byte{7, 7, 7}
	close(stale.ch)

	// The fresh chunk must be the only audio the new recording accumulates.
	device.streams[1].ch <- []byte{1}
	waitFor(t, "fresh audio", func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return capture.rawAudio.Len() == 1
	})

	if capture.State() != StateRecording {
		t.Fatalf("Expected stale stream death to be ignored, state is %s", capture.State())
	}
	capture.mu.Lock()
	got := capture.rawAudio.Len()
	capture.mu.Unlock()
	if got != 1 {
		t.Errorf("Expected 1 byte of audio from the new recording, got %d", got)
	}
	capture.Discard()
}

func TestRecognizerUnavailableStillRecords(t *testing.T) {
	capture, device, recognizer := newTestCapture(t)
	recognizer.err = errors.New("recognizer down")

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Expected recording to start without recognizer, got %v", err)
	}
	if capture.State() != StateRecording {
		t.Fatalf("Expected Recording, got %s", capture.State())
	}

	device.stream.ch <- []byte{9, 9}
	// Raw capture still feeds the fallback transcription path.
	waitFor(t, "raw audio", func() bool {
		capture.mu.Lock()
		defer capture.mu.Unlock()
		return capture.rawAudio.Len() == 2
	})

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(capture.PendingAudio()) != 2 {
		t.Errorf("Expected queued raw audio, got %d bytes", len(capture.PendingAudio()))
	}
	capture.Discard()
}
