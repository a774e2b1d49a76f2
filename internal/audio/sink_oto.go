package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

// renderReader 把调度器混音转换为 oto 需要的 16-bit 小端 PCM 流
type renderReader struct {
	scheduler Scheduler
	buf       []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	channels := r.scheduler.Channels()
	frames := len(p) / (2 * channels)
	if frames == 0 {
		return 0, nil
	}
	if need := frames * channels; len(r.buf) < need {
		r.buf = make([]float32, need)
	}
	buf := r.buf[:frames*channels]
	r.scheduler.Render(buf)
	for i, v := range buf {
		s := int16(math.Round(float64(v) * math.MaxInt16))
		p[i*2] = byte(s)
		p[i*2+1] = byte(s >> 8)
	}
	return len(buf) * 2, nil
}

// otoSink oto 输出端；oto 会预读缓冲，时间线比实际发声提前一个缓冲区
type otoSink struct {
	scheduler Scheduler
	player    *oto.Player

	mu      sync.Mutex
	started bool
}

// NewOtoSink oto 仅支持 44100 / 48000 Hz
func NewOtoSink(scheduler Scheduler, framesPerBuffer int) (Sink, error) {
	rate := scheduler.SampleRate()
	if rate != 44100 && rate != 48000 {
		return nil, fmt.Errorf("oto output requires 44100 or 48000 Hz, got %d", rate)
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: scheduler.Channels(),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(framesPerBuffer) * time.Second / time.Duration(rate),
	})
	if err != nil {
		return nil, fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(&renderReader{scheduler: scheduler})
	player.SetBufferSize(framesPerBuffer * scheduler.Channels() * 2)
	return &otoSink{scheduler: scheduler, player: player}, nil
}

func (s *otoSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.player.Play()
	s.started = true
	logging.Infof("OtoSink: started (%d Hz, %d ch)", s.scheduler.SampleRate(), s.scheduler.Channels())
	return nil
}

func (s *otoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}
