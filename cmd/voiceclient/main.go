// Command voiceclient exercises the voice WebSocket endpoint against a
// running server. It logs in, streams a local audio file as one recording,
// and prints the transcript events and the assistant reply. Narrated reply
// audio, when the server sends it, is saved under audio_responses/.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Tokens struct {
		AccessToken string `json:"access_token"`
	} `json:"tokens"`
}

type clientFrame struct {
	Type       string `json:"type"`
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Text       string `json:"text,omitempty"`
}

type serverFrame struct {
	Type    string  `json:"type"`
	State   string  `json:"state,omitempty"`
	Text    string  `json:"text,omitempty"`
	Final   bool    `json:"final,omitempty"`
	Elapsed float64 `json:"elapsed,omitempty"`
	Audio   string  `json:"audio,omitempty"`
	Message string  `json:"message,omitempty"`
}

func main() {
	host := flag.String("host", "localhost:8080", "server host:port")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	domain := flag.String("domain", "medical", "conversation domain (medical or health)")
	audioPath := flag.String("audio", "sample_audio.wav", "audio file to stream")
	language := flag.String("language", "en-US", "recognition language")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("both -email and -password are required")
	}

	token, err := login(*host, *email, *password)
	if err != nil {
		log.Fatal("login failed: ", err)
	}
	log.Printf("logged in as %s", *email)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws/voice"}
	q := u.Query()
	q.Set("token", token)
	q.Set("domain", *domain)
	u.RawQuery = q.Encode()
	log.Printf("connecting to %s", u.Path)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go readFrames(c, done)

	if err := streamRecording(c, *audioPath, *language); err != nil {
		log.Printf("recording failed: %v", err)
		return
	}

	select {
	case <-done:
	case <-interrupt:
		log.Println("interrupt")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func login(host, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post("http://"+host+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", string(raw))
	}

	var parsed loginResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	return parsed.Tokens.AccessToken, nil
}

func streamRecording(c *websocket.Conn, audioPath, language string) error {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}
	log.Printf("read %s (%d bytes)", audioPath, len(audio))

	if err := writeFrame(c, clientFrame{Type: "start", Language: language, SampleRate: 16000, Encoding: "wav"}); err != nil {
		return err
	}

	chunkSize := 4096
	for start := 0; start < len(audio); start += chunkSize {
		end := start + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := clientFrame{
			Type:  "audio",
			Audio: base64.StdEncoding.EncodeToString(audio[start:end]),
		}
		if err := writeFrame(c, frame); err != nil {
			return err
		}
		// Pace the chunks roughly like a live microphone would.
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("sent %d audio bytes", len(audio))

	if err := writeFrame(c, clientFrame{Type: "stop"}); err != nil {
		return err
	}
	// Give the recognizer a moment to settle on the final transcript.
	time.Sleep(2 * time.Second)

	return writeFrame(c, clientFrame{Type: "send"})
}

func writeFrame(c *websocket.Conn, frame clientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

func readFrames(c *websocket.Conn, done chan struct{}) {
	defer close(done)

	var narration *os.File
	var narrationBytes int

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Println("unmarshal:", err)
			continue
		}

		switch frame.Type {
		case "state":
			log.Printf("state: %s", frame.State)
		case "transcript":
			if frame.Final {
				log.Printf("transcript (final, %.1fs): %s", frame.Elapsed, frame.Text)
			} else {
				log.Printf("transcript: %s", frame.Text)
			}
		case "reply":
			log.Printf("reply: %s", string(raw))
		case "reply_audio":
			if frame.Final {
				if narration != nil {
					narration.Close()
					log.Printf("narration complete (%d bytes)", narrationBytes)
					return
				}
				log.Println("reply had no narration")
				return
			}
			if narration == nil {
				if err := os.MkdirAll("audio_responses", 0755); err != nil {
					log.Println("mkdir:", err)
					return
				}
				name := filepath.Join("audio_responses", fmt.Sprintf("%d.mp3", time.Now().Unix()))
				narration, err = os.Create(name)
				if err != nil {
					log.Println("create:", err)
					return
				}
				log.Printf("saving narration to %s", name)
			}
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				log.Println("decode narration:", err)
				continue
			}
			narrationBytes += len(chunk)
			narration.Write(chunk)
		case "no_speech":
			log.Printf("no speech detected: %s", frame.Message)
			return
		case "error":
			log.Printf("server error: %s", frame.Message)
		default:
			log.Printf("unknown frame: %s", string(raw))
		}
	}
}
