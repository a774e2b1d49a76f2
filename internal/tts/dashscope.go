package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

const defaultDashScopeEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

// DashScope 双工协议的指令与事件
const (
	actionRunTask      = "run-task"
	actionContinueTask = "continue-task"
	actionFinishTask   = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"
)

// DashScopeProvider CosyVoice 流式合成
// 每次 Start 建立一条连接承载一个任务：
// run-task -> task-started -> continue-task* -> finish-task -> task-finished
type DashScopeProvider struct {
	dialer *websocket.Dialer
}

func NewDashScopeProvider() *DashScopeProvider {
	return &DashScopeProvider{dialer: websocket.DefaultDialer}
}

func (p *DashScopeProvider) Start(ctx context.Context, cfg Config) (Stream, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := p.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	task := &dashScopeTask{
		id:      uuid.NewString(),
		cfg:     cfg,
		conn:    conn,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go task.receive()

	if err := task.send(ctx, task.runTask()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send run-task: %w", err)
	}
	if err := task.waitStarted(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logging.Debugf("DashScope: task %s started (voice=%s rate=%.2f pitch=%.2f)", task.id, cfg.Voice, cfg.Rate, cfg.Pitch)
	return task, nil
}

func (p *DashScopeProvider) dial(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "bearer "+cfg.APIKey)
	if cfg.EnableDataInspection != nil && *cfg.EnableDataInspection {
		header.Set("X-DashScope-DataInspection", "enable")
	}
	if ws := strings.TrimSpace(cfg.Workspace); ws != "" {
		header.Set("X-DashScope-WorkSpace", ws)
	}

	dialer := p.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, header)
	if err == nil {
		return conn, nil
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: dashscope handshake rejected (%d)", ErrAuth, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: dashscope handshake status %d", ErrTransient, resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("dial dashscope: %w", err)
}

// dashScopeTask 单个合成任务；音频帧由接收协程追加，任务结束后由 Close 一次性取走
type dashScopeTask struct {
	id   string
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	audio      bytes.Buffer
	err        error
	characters int

	started    chan struct{}
	done       chan struct{}
	startOnce  sync.Once
	finishOnce sync.Once
}

func (t *dashScopeTask) SampleRate() int { return t.cfg.SampleRate }

// Channels CosyVoice 只输出单声道
func (t *dashScopeTask) Channels() int { return 1 }

func (t *dashScopeTask) WriteTextChunk(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := t.waitStarted(ctx); err != nil {
		return err
	}
	if err := t.send(ctx, t.message(actionContinueTask, dashScopePayload{Input: dashScopeInput{Text: text}})); err != nil {
		return fmt.Errorf("send continue-task: %w", err)
	}
	return nil
}

// Close 发送 finish-task 并等待 task-finished，连接随之关闭
func (t *dashScopeTask) Close(ctx context.Context) ([]byte, error) {
	defer t.conn.Close()

	var sendErr error
	t.finishOnce.Do(func() {
		sendErr = t.send(ctx, t.message(actionFinishTask, dashScopePayload{}))
	})
	if sendErr != nil {
		if err := t.result(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("send finish-task: %w", sendErr)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	logging.Debugf("DashScope: task %s finished, %d characters billed", t.id, t.characters)
	return t.audio.Bytes(), nil
}

func (t *dashScopeTask) waitStarted(ctx context.Context) error {
	select {
	case <-t.started:
		return nil
	case <-t.done:
		if err := t.result(); err != nil {
			return err
		}
		return fmt.Errorf("%w: dashscope task %s ended before start", ErrTransient, t.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *dashScopeTask) runTask() dashScopeMessage {
	return t.message(actionRunTask, dashScopePayload{
		TaskGroup: "audio",
		Task:      "tts",
		Function:  "SpeechSynthesizer",
		Model:     t.cfg.Model,
		Parameters: &synthesisParameters{
			TextType:   "PlainText",
			Voice:      t.cfg.Voice,
			Format:     t.cfg.Format,
			SampleRate: t.cfg.SampleRate,
			Volume:     t.cfg.Volume,
			Rate:       t.cfg.Rate,
			Pitch:      t.cfg.Pitch,
		},
	})
}

func (t *dashScopeTask) message(action string, payload dashScopePayload) dashScopeMessage {
	return dashScopeMessage{
		Header:  dashScopeHeader{Action: action, TaskID: t.id, Streaming: "duplex"},
		Payload: payload,
	}
}

func (t *dashScopeTask) send(ctx context.Context, msg dashScopeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// receive 是 done 唯一的关闭者
func (t *dashScopeTask) receive() {
	defer close(t.done)
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(fmt.Errorf("%w: read dashscope: %w", ErrTransient, err))
			return
		}
		if kind == websocket.BinaryMessage {
			t.mu.Lock()
			t.audio.Write(data)
			t.mu.Unlock()
			continue
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg dashScopeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.fail(fmt.Errorf("decode dashscope event: %w", err))
			return
		}
		if usage := msg.Payload.Usage; usage != nil {
			t.mu.Lock()
			t.characters = usage.Characters
			t.mu.Unlock()
		}
		switch msg.Header.Event {
		case eventTaskStarted:
			t.startOnce.Do(func() { close(t.started) })
		case eventResultGenerated:
		case eventTaskFinished:
			return
		case eventTaskFailed:
			t.fail(mapDashScopeError(msg.Header.ErrorCode, msg.Header.ErrorMessage))
			return
		default:
			logging.Debugf("DashScope: task %s ignoring event %q", t.id, msg.Header.Event)
		}
	}
}

// fail 只记录第一个错误
func (t *dashScopeTask) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *dashScopeTask) result() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("%w: DASHSCOPE_API_KEY is required", ErrAuth)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultDashScopeEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "cosyvoice-v3-flash"
	}
	if cfg.Voice == "" {
		cfg.Voice = "longanyang"
	}
	if cfg.Format == "" {
		cfg.Format = "pcm"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Volume == 0 {
		cfg.Volume = 50
	}
	if cfg.Rate == 0 {
		cfg.Rate = 1
	}
	if cfg.Pitch == 0 {
		cfg.Pitch = 1
	}
	if cfg.EnableDataInspection == nil {
		enabled := true
		cfg.EnableDataInspection = &enabled
	}
	return cfg, nil
}

// dashScopeMessage 指令与事件共用同一外壳
type dashScopeMessage struct {
	Header  dashScopeHeader  `json:"header"`
	Payload dashScopePayload `json:"payload"`
}

type dashScopeHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type dashScopePayload struct {
	TaskGroup  string               `json:"task_group,omitempty"`
	Task       string               `json:"task,omitempty"`
	Function   string               `json:"function,omitempty"`
	Model      string               `json:"model,omitempty"`
	Parameters *synthesisParameters `json:"parameters,omitempty"`
	Input      dashScopeInput       `json:"input"`
	Usage      *dashScopeUsage      `json:"usage,omitempty"`
}

// synthesisParameters run-task 参数，rate / pitch 来自效果音色
type synthesisParameters struct {
	TextType   string  `json:"text_type"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Volume     int     `json:"volume"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
}

type dashScopeInput struct {
	Text string `json:"text,omitempty"`
}

type dashScopeUsage struct {
	Characters int `json:"characters"`
}

// 错误码按关键字归类，未命中的按服务端异常处理
var dashScopeErrorKinds = []struct {
	keyword string
	kind    error
}{
	{"unauthorized", ErrAuth},
	{"authentication", ErrAuth},
	{"accessdenied", ErrAuth},
	{"invalidapikey", ErrAuth},
	{"invalidparameter", ErrBadRequest},
	{"datainspectionfailed", ErrBadRequest},
	{"bad request", ErrBadRequest},
	{"throttling", ErrTransient},
	{"timeout", ErrTransient},
	{"internalerror", ErrTransient},
}

func mapDashScopeError(code, message string) error {
	logging.Errorf("DashScope: task failed: code=%s message=%s", code, message)
	if message == "" {
		message = "dashscope task failed"
	}
	lower := strings.ToLower(code + " " + message)
	for _, k := range dashScopeErrorKinds {
		if strings.Contains(lower, k.keyword) {
			return fmt.Errorf("%w: %s: %s", k.kind, code, message)
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrTransient, code, message)
}

var _ Stream = (*dashScopeTask)(nil)
