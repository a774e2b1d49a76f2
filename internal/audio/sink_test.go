package audio

import (
	"context"
	"testing"
	"time"
)

func TestNullSink_AdvancesClock(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{SampleRate: 8000, Channels: 1})
	sink := NewNullSink(s, &NullSinkConfig{Block: 50 * time.Millisecond, Interval: 5 * time.Millisecond})
	if err := sink.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitUntil(ctx, 0.5); err != nil {
		t.Fatalf("WaitUntil() error = %v", err)
	}
	if s.Now() < 0.5 {
		t.Errorf("Now() = %f, want >= 0.5", s.Now())
	}
}

func TestNullSink_CloseStopsRendering(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{SampleRate: 8000, Channels: 1})
	sink := NewNullSink(s, nil)
	if err := sink.Start(); err != nil {
		t.Fatal(err)
	}
	// second Start is a no-op
	if err := sink.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	stopped := s.Now()
	time.Sleep(30 * time.Millisecond)
	if s.Now() != stopped {
		t.Errorf("clock moved after Close: %f -> %f", stopped, s.Now())
	}
}

func TestNewSink_UnknownKind(t *testing.T) {
	if _, err := NewSink("speaker-of-doom", NewScheduler(nil), 512); err == nil {
		t.Error("expected error for unknown sink kind")
	}
	sink, err := NewSink("null", NewScheduler(nil), 512)
	if err != nil || sink == nil {
		t.Fatalf("NewSink(null) = %v, %v", sink, err)
	}
}

func TestSleep(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{SampleRate: 1000, Channels: 1})
	sink := NewNullSink(s, &NullSinkConfig{Block: 20 * time.Millisecond, Interval: time.Millisecond})
	_ = sink.Start()
	defer sink.Close()

	start := s.Now()
	if err := Sleep(context.Background(), s, 0.2); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if s.Now()-start < 0.2 {
		t.Errorf("slept %f timeline seconds, want >= 0.2", s.Now()-start)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, s, 10); err == nil {
		t.Error("expected cancelled sleep to fail")
	}
}
