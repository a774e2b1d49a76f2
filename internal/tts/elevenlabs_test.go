package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	path   string
	query  string
	apiKey string
	body   map[string]any
}

func newElevenLabsServer(t *testing.T, status int, payload []byte) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("xi-api-key"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestElevenLabs_Synthesize(t *testing.T) {
	srv, requests := newElevenLabsServer(t, http.StatusOK, []byte("ID3fake-mp3"))
	client, err := NewElevenLabs(&ElevenLabsConfig{APIKey: "secret", Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewElevenLabs() error = %v", err)
	}

	audio, err := client.Synthesize(context.Background(), "  ...I am   Iron Man. ", VoiceParams{Stability: 0.2, SimilarityBoost: 0.3})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "ID3fake-mp3" {
		t.Errorf("audio = %q", audio)
	}

	if len(*requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req.path != "/v1/text-to-speech/"+defaultElevenLabsVoice || req.query != "output_format=mp3_44100_128" {
		t.Errorf("url = %s?%s", req.path, req.query)
	}
	if req.apiKey != "secret" {
		t.Errorf("xi-api-key = %q", req.apiKey)
	}
	if req.body["text"] != "I am Iron Man." || req.body["model_id"] != defaultElevenLabsModel {
		t.Errorf("body = %v", req.body)
	}
	settings, _ := req.body["voice_settings"].(map[string]any)
	if settings["stability"] != 0.2 || settings["similarity_boost"] != 0.3 || settings["use_speaker_boost"] != true {
		t.Errorf("voice_settings = %v", settings)
	}
}

func TestElevenLabs_DefaultVoiceSettings(t *testing.T) {
	srv, requests := newElevenLabsServer(t, http.StatusOK, []byte("mp3"))
	client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL, VoiceID: "voice-1"}, nil)
	if _, err := client.Synthesize(context.Background(), "hello", VoiceParams{}); err != nil {
		t.Fatal(err)
	}
	req := (*requests)[0]
	if !strings.HasSuffix(req.path, "/voice-1") {
		t.Errorf("path = %s", req.path)
	}
	settings, _ := req.body["voice_settings"].(map[string]any)
	if settings["stability"] != 0.55 || settings["similarity_boost"] != 0.75 || settings["style"] != 0.4 {
		t.Errorf("voice_settings = %v", settings)
	}
	if _, ok := settings["speed"]; ok {
		t.Errorf("speed should be omitted without an effect override: %v", settings)
	}
}

func TestElevenLabs_SpeedClamped(t *testing.T) {
	tests := []struct {
		speed float64
		want  float64
	}{
		{0.9, 0.9},
		{0.5, minElevenLabsSpeed},
		{1.6, maxElevenLabsSpeed},
	}
	for _, tt := range tests {
		srv, requests := newElevenLabsServer(t, http.StatusOK, []byte("mp3"))
		client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL}, nil)
		if _, err := client.Synthesize(context.Background(), "hello", VoiceParams{Speed: tt.speed}); err != nil {
			t.Fatal(err)
		}
		settings, _ := (*requests)[0].body["voice_settings"].(map[string]any)
		if settings["speed"] != tt.want {
			t.Errorf("Speed %v: voice_settings.speed = %v, want %v", tt.speed, settings["speed"], tt.want)
		}
	}
}

func TestElevenLabs_GenerateSound(t *testing.T) {
	srv, requests := newElevenLabsServer(t, http.StatusOK, []byte("moo"))
	client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL}, nil)
	data, err := client.GenerateSound(context.Background(), "a cow mooing loudly", 2)
	if err != nil || string(data) != "moo" {
		t.Fatalf("GenerateSound() = %q, %v", data, err)
	}
	req := (*requests)[0]
	if req.path != "/v1/sound-generation" || req.body["text"] != "a cow mooing loudly" || req.body["duration_seconds"] != 2.0 {
		t.Errorf("request = %+v", req)
	}
}

func TestElevenLabs_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   []byte
		want   error
	}{
		{http.StatusUnauthorized, []byte(`{"detail":"bad key"}`), ErrAuth},
		{http.StatusUnprocessableEntity, []byte(`{"detail":"text"}`), ErrBadRequest},
		{http.StatusTooManyRequests, nil, ErrTransient},
		{http.StatusBadGateway, nil, ErrTransient},
		{http.StatusOK, nil, ErrEmptyAudio},
	}
	for _, tt := range tests {
		srv, _ := newElevenLabsServer(t, tt.status, tt.body)
		client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL}, nil)
		_, err := client.Synthesize(context.Background(), "hello", VoiceParams{})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestElevenLabs_Validation(t *testing.T) {
	if _, err := NewElevenLabs(&ElevenLabsConfig{}, nil); !errors.Is(err, ErrAuth) {
		t.Errorf("missing key: err = %v", err)
	}
	client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: "http://127.0.0.1:1"}, nil)
	if _, err := client.Synthesize(context.Background(), " \u200b ", VoiceParams{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text: err = %v", err)
	}
}

func TestElevenLabs_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client, _ := NewElevenLabs(&ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	start := time.Now()
	if _, err := client.Synthesize(context.Background(), "slow", VoiceParams{}); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}
