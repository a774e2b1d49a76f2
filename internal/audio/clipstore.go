package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Loader 按来源标识读取原始音频字节
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// LoaderFunc 函数适配 Loader
type LoaderFunc func(ctx context.Context, ref string) ([]byte, error)

func (f LoaderFunc) Load(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// ErrInvalidRef ref 不是目录内的相对路径
var ErrInvalidRef = errors.New("audio ref must be a local relative path")

// FileLoader 从目录读取音频文件，ref 为相对路径
type FileLoader struct {
	Dir string
}

// Path 解析 ref 在 Dir 下的文件路径，绝对路径和越出目录的 ref 返回 ErrInvalidRef
func (l FileLoader) Path(ref string) (string, error) {
	if !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(l.Dir, ref), nil
}

func (l FileLoader) Load(_ context.Context, ref string) ([]byte, error) {
	path, err := l.Path(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// ClipStoreConfig 片段统一转换到的输出格式
type ClipStoreConfig struct {
	SampleRate int
	Channels   int
	Resampler  Resampler
}

// ClipStore 持有解码后的音频：
// 效果片段加载一次、永久缓存；语音片段只解码不缓存，由调用方 Release
type ClipStore struct {
	loader Loader
	config ClipStoreConfig

	mu      sync.RWMutex
	effects map[string]*Clip
	group   singleflight.Group
}

func NewClipStore(loader Loader, config ClipStoreConfig) *ClipStore {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.Resampler == nil {
		config.Resampler = NewLinearResampler()
	}
	return &ClipStore{
		loader:  loader,
		config:  config,
		effects: make(map[string]*Clip),
	}
}

// Effect 返回 ref 对应的效果片段；并发的首次请求只触发一次加载
// 加载失败不缓存，下次调用会重试
func (s *ClipStore) Effect(ctx context.Context, ref string) (*Clip, error) {
	s.mu.RLock()
	clip, ok := s.effects[ref]
	s.mu.RUnlock()
	if ok {
		return clip, nil
	}

	v, err, _ := s.group.Do(ref, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.effects[ref]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		if s.loader == nil {
			return nil, fmt.Errorf("no loader for effect %q", ref)
		}
		data, err := s.loader.Load(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load effect %q: %w", ref, err)
		}
		decoded, err := s.decode(data)
		if err != nil {
			return nil, fmt.Errorf("effect %q: %w", ref, err)
		}

		s.mu.Lock()
		s.effects[ref] = decoded
		s.mu.Unlock()
		logging.Infof("ClipStore: cached effect %q (%.2fs, %s)", ref, decoded.Duration(), humanize.Bytes(decoded.SizeBytes()))
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Clip), nil
}

// Speech 解码一次性语音片段，不进入缓存
func (s *ClipStore) Speech(data []byte) (*Clip, error) {
	clip, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	logging.Debugf("ClipStore: decoded speech clip (%.2fs, %s)", clip.Duration(), humanize.Bytes(clip.SizeBytes()))
	return clip, nil
}

// CachedCount 已缓存的效果片段数
func (s *ClipStore) CachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.effects)
}

func (s *ClipStore) decode(data []byte) (*Clip, error) {
	clip, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Conform(clip, s.config.SampleRate, s.config.Channels, s.config.Resampler)
}
