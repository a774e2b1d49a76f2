package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

const (
	defaultElevenLabsEndpoint = "https://api.elevenlabs.io"
	defaultElevenLabsVoice    = "ssKAEhdevSPzKs37U6qX"
	defaultElevenLabsModel    = "eleven_turbo_v2_5"
	defaultElevenLabsFormat   = "mp3_44100_128"
)

// ElevenLabsConfig ElevenLabs HTTP 接口配置
type ElevenLabsConfig struct {
	APIKey       string        `json:"api_key"`
	Endpoint     string        `json:"endpoint"`
	VoiceID      string        `json:"voice_id"`
	ModelID      string        `json:"model_id"`
	OutputFormat string        `json:"output_format"`
	Timeout      time.Duration `json:"-"`
	// 缺省音色参数
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		Endpoint:        defaultElevenLabsEndpoint,
		VoiceID:         defaultElevenLabsVoice,
		ModelID:         defaultElevenLabsModel,
		OutputFormat:    defaultElevenLabsFormat,
		Timeout:         5 * time.Second,
		Stability:       0.55,
		SimilarityBoost: 0.75,
		Style:           0.4,
	}
}

// ElevenLabs 语音合成与音效生成
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabs 创建客户端，client 为 nil 时使用带超时的默认客户端
func NewElevenLabs(cfg *ElevenLabsConfig, client *http.Client) (*ElevenLabs, error) {
	normalized := DefaultElevenLabsConfig()
	if cfg != nil {
		merged := *cfg
		if merged.Endpoint == "" {
			merged.Endpoint = normalized.Endpoint
		}
		if merged.VoiceID == "" {
			merged.VoiceID = normalized.VoiceID
		}
		if merged.ModelID == "" {
			merged.ModelID = normalized.ModelID
		}
		if merged.OutputFormat == "" {
			merged.OutputFormat = normalized.OutputFormat
		}
		if merged.Timeout <= 0 {
			merged.Timeout = normalized.Timeout
		}
		if merged.Stability == 0 && merged.SimilarityBoost == 0 && merged.Style == 0 {
			merged.Stability = normalized.Stability
			merged.SimilarityBoost = normalized.SimilarityBoost
			merged.Style = normalized.Style
		}
		normalized = &merged
	}
	if strings.TrimSpace(normalized.APIKey) == "" {
		return nil, fmt.Errorf("%w: ELEVENLABS_API_KEY is required", ErrAuth)
	}
	if client == nil {
		client = &http.Client{Timeout: normalized.Timeout}
	}
	return &ElevenLabs{cfg: *normalized, client: client}, nil
}

// ElevenLabs voice_settings.speed 接受的范围
const (
	minElevenLabsSpeed = 0.7
	maxElevenLabsSpeed = 1.2
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type soundRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Synthesize POST /v1/text-to-speech/{voice}，返回 MP3 字节
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error) {
	cleaned, err := CleanText(text)
	if err != nil {
		return nil, err
	}

	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = e.cfg.VoiceID
	}
	settings := voiceSettings{
		Stability:       e.cfg.Stability,
		SimilarityBoost: e.cfg.SimilarityBoost,
		Style:           e.cfg.Style,
		UseSpeakerBoost: true,
	}
	if voice.Stability > 0 || voice.SimilarityBoost > 0 || voice.Style > 0 {
		settings.Stability = voice.Stability
		settings.SimilarityBoost = voice.SimilarityBoost
		settings.Style = voice.Style
	}
	if voice.Speed > 0 {
		settings.Speed = min(max(voice.Speed, minElevenLabsSpeed), maxElevenLabsSpeed)
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + url.QueryEscape(e.cfg.OutputFormat)
	start := time.Now()
	audio, err := e.post(ctx, path, speechRequest{
		Text:          cleaned,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, err
	}
	logging.Debugf("ElevenLabs: synthesized %q (%s) in %v", cleaned, humanize.Bytes(uint64(len(audio))), time.Since(start))
	return audio, nil
}

// GenerateSound POST /v1/sound-generation
func (e *ElevenLabs) GenerateSound(ctx context.Context, prompt string, durationSeconds float64) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty sound prompt", ErrEmptyText)
	}
	audio, err := e.post(ctx, "/v1/sound-generation", soundRequest{Text: prompt, DurationSeconds: durationSeconds})
	if err != nil {
		return nil, err
	}
	logging.Infof("ElevenLabs: generated sound %q (%s)", prompt, humanize.Bytes(uint64(len(audio))))
	return audio, nil
}

func (e *ElevenLabs) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.cfg.Endpoint, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}

func mapHTTPError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	logging.Errorf("TTS error: status=%d, message=%s", status, msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, status, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", ErrBadRequest, status, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, msg)
	default:
		return fmt.Errorf("tts request failed: status %d: %s", status, msg)
	}
}
