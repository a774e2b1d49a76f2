package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liuscraft/orion-mashup/internal/audio"
)

type fakeDashScope struct {
	mu      sync.Mutex
	actions []string
	texts   []string
	params  synthesisParameters
	taskIDs map[string]bool
	fail    string
}

func (f *fakeDashScope) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		send := func(event string) {
			msg := map[string]any{"header": map[string]any{"event": event, "error_code": f.fail, "error_message": f.fail}}
			data, _ := json.Marshal(msg)
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg dashScopeMessage
			_ = json.Unmarshal(data, &msg)

			f.mu.Lock()
			f.actions = append(f.actions, msg.Header.Action)
			if f.taskIDs == nil {
				f.taskIDs = make(map[string]bool)
			}
			f.taskIDs[msg.Header.TaskID] = true
			f.mu.Unlock()

			switch msg.Header.Action {
			case "run-task":
				f.mu.Lock()
				if msg.Payload.Parameters != nil {
					f.params = *msg.Payload.Parameters
				}
				f.mu.Unlock()
				send("task-started")
			case "continue-task":
				f.mu.Lock()
				f.texts = append(f.texts, msg.Payload.Input.Text)
				f.mu.Unlock()
				if f.fail != "" {
					send("task-failed")
					continue
				}
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0})
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{3, 0})
				send("result-generated")
			case "finish-task":
				send("task-finished")
				return
			}
		}
	}
}

func startFakeDashScope(t *testing.T, fake *fakeDashScope) Config {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return Config{
		APIKey:     "key",
		Endpoint:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Format:     "pcm",
		SampleRate: 16000,
	}
}

func TestStreamSynthesizer_DashScopePCM(t *testing.T) {
	fake := &fakeDashScope{}
	cfg := startFakeDashScope(t, fake)
	synth := NewStreamSynthesizer(NewDashScopeProvider(), cfg, 2*time.Second)

	data, err := synth.Synthesize(context.Background(), "  hello   there ", VoiceParams{VoiceID: "zhichu"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	clip, err := audio.Decode(data)
	if err != nil {
		t.Fatalf("decode synthesized wav: %v", err)
	}
	if clip.SampleRate() != 16000 || clip.Channels() != 1 || clip.Frames() != 3 {
		t.Errorf("clip = %d Hz %d ch %d frames", clip.SampleRate(), clip.Channels(), clip.Frames())
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	want := []string{"run-task", "continue-task", "finish-task"}
	if strings.Join(fake.actions, ",") != strings.Join(want, ",") {
		t.Errorf("actions = %v, want %v", fake.actions, want)
	}
	if len(fake.texts) != 1 || fake.texts[0] != "hello there" {
		t.Errorf("texts = %v", fake.texts)
	}
	if fake.params.Voice != "zhichu" || fake.params.Format != "pcm" || fake.params.SampleRate != 16000 {
		t.Errorf("run-task parameters = %+v", fake.params)
	}
	if fake.params.Rate != 1 || fake.params.Pitch != 1 || fake.params.TextType != "PlainText" {
		t.Errorf("default prosody = %+v", fake.params)
	}
	if len(fake.taskIDs) != 1 {
		t.Errorf("task ids = %v, want one id for the whole task", fake.taskIDs)
	}
}

func TestStreamSynthesizer_DashScopeEffectProsody(t *testing.T) {
	tests := []struct {
		name      string
		voice     VoiceParams
		wantRate  float64
		wantPitch float64
	}{
		{"effect prosody", VoiceParams{Speed: 0.85, Pitch: 1.4}, 0.85, 1.4},
		{"clamped", VoiceParams{Speed: 3, Pitch: 0.1}, maxProsody, minProsody},
		{"config fallback", VoiceParams{}, 1.2, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDashScope{}
			cfg := startFakeDashScope(t, fake)
			cfg.Rate = 1.2
			cfg.Pitch = 0.9
			synth := NewStreamSynthesizer(NewDashScopeProvider(), cfg, 2*time.Second)
			if _, err := synth.Synthesize(context.Background(), "moo", tt.voice); err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			fake.mu.Lock()
			defer fake.mu.Unlock()
			if fake.params.Rate != tt.wantRate || fake.params.Pitch != tt.wantPitch {
				t.Errorf("rate/pitch = %v/%v, want %v/%v", fake.params.Rate, fake.params.Pitch, tt.wantRate, tt.wantPitch)
			}
		})
	}
}

func TestConfig_WithVoice(t *testing.T) {
	base := Config{Voice: "longanyang", Rate: 1, Pitch: 1, Volume: 50}
	got := base.WithVoice(VoiceParams{VoiceID: "zhichu", Speed: 1.1})
	if got.Voice != "zhichu" || got.Rate != 1.1 || got.Pitch != 1 || got.Volume != 50 {
		t.Errorf("WithVoice() = %+v", got)
	}
	if base.Voice != "longanyang" || base.Rate != 1 {
		t.Errorf("WithVoice modified the receiver: %+v", base)
	}
}

func TestDashScopeProvider_HandshakeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		cfg := Config{APIKey: "key", Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")}
		_, err := NewDashScopeProvider().Start(context.Background(), cfg)
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestStreamSynthesizer_DashScopeTaskFailed(t *testing.T) {
	fake := &fakeDashScope{fail: "InvalidParameter"}
	cfg := startFakeDashScope(t, fake)
	synth := NewStreamSynthesizer(NewDashScopeProvider(), cfg, 2*time.Second)

	_, err := synth.Synthesize(context.Background(), "hello", VoiceParams{})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestDashScopeProvider_RequiresKey(t *testing.T) {
	if _, err := NewDashScopeProvider().Start(context.Background(), Config{}); !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth without api key", err)
	}
}

func TestMapDashScopeError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"Unauthorized", ErrAuth},
		{"InvalidParameter", ErrBadRequest},
		{"RequestTimeout", ErrTransient},
		{"Throttling.RateQuota", ErrTransient},
		{"DataInspectionFailed", ErrBadRequest},
		{"SomethingNew", ErrTransient},
	}
	for _, tt := range tests {
		if err := mapDashScopeError(tt.code, "msg"); !errors.Is(err, tt.want) {
			t.Errorf("mapDashScopeError(%q) = %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		max  int
		want []string
	}{
		{"hello there", 120, []string{"hello there"}},
		{"Run! Run now. ", 120, []string{"Run!", "Run now."}},
		{"abcdef", 4, []string{"abcd", "ef"}},
		{"你好。再见", 0, []string{"你好。", "再见"}},
		{"   ", 10, nil},
	}
	for _, tt := range tests {
		got := splitSentences(tt.text, tt.max)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitSentences(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
		}
	}
}
