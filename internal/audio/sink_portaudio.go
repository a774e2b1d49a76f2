package audio

import (
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

type portAudioSink struct {
	scheduler Scheduler
	stream    *portaudio.Stream
	scratch   []float32

	mu      sync.Mutex
	started bool
}

// NewPortAudioSink 打开默认输出设备，回调中渲染调度器混音
func NewPortAudioSink(scheduler Scheduler, framesPerBuffer int) (Sink, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s := &portAudioSink{
		scheduler: scheduler,
		scratch:   make([]float32, framesPerBuffer*scheduler.Channels()),
	}
	stream, err := portaudio.OpenDefaultStream(0, scheduler.Channels(), float64(scheduler.SampleRate()), framesPerBuffer, s.audioCallback)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *portAudioSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		logging.Errorf("PortAudioSink: failed to start stream: %v", err)
		return err
	}
	s.started = true
	logging.Infof("PortAudioSink: started (%d Hz, %d ch)", s.scheduler.SampleRate(), s.scheduler.Channels())
	return nil
}

func (s *portAudioSink) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	started := s.started
	s.started = false
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if started {
		if err := stream.Stop(); err != nil {
			logging.Errorf("PortAudioSink: failed to stop stream: %v", err)
		}
	}
	if err := stream.Close(); err != nil {
		logging.Errorf("PortAudioSink: failed to close stream: %v", err)
	}
	return portaudio.Terminate()
}

// audioCallback portaudio 非交错缓冲：out[channel][frame]
func (s *portAudioSink) audioCallback(out [][]float32) {
	if len(out) == 0 {
		return
	}
	channels := len(out)
	frames := len(out[0])
	if need := frames * channels; len(s.scratch) < need {
		s.scratch = make([]float32, need)
	}
	buf := s.scratch[:frames*channels]
	s.scheduler.Render(buf)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][f] = buf[f*channels+ch]
		}
	}
}
