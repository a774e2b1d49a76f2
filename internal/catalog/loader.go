package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

// 生成音效的目标时长（秒）
const generatedSoundSeconds = 2.0

// SoundLoader 以效果 ID 为 ref 读取音效文件
// 文件不存在且配置了 Generator 时，按 prompt 生成并写回 Dir
type SoundLoader struct {
	Catalog   *Catalog
	Dir       string
	Generator tts.SoundGenerator
}

var _ audio.Loader = (*SoundLoader)(nil)

func (l *SoundLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	effect, ok := l.Catalog.Effect(ref)
	if !ok {
		return nil, fmt.Errorf("unknown effect %q", ref)
	}

	files := audio.FileLoader{Dir: l.Dir}
	if effect.Sound != "" {
		data, err := files.Load(ctx, effect.Sound)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) || l.Generator == nil || effect.Prompt == "" {
			return nil, err
		}
		logging.Warnf("Catalog: sound file for %q missing, generating from prompt", effect.ID)
	} else if l.Generator == nil {
		return nil, fmt.Errorf("effect %q has no sound file and no generator", effect.ID)
	}

	data, err := l.Generator.GenerateSound(ctx, effect.Prompt, generatedSoundSeconds)
	if err != nil {
		return nil, fmt.Errorf("generate sound %q: %w", effect.ID, err)
	}
	if effect.Sound != "" && l.Dir != "" {
		l.save(files, effect.Sound, data)
	}
	return data, nil
}

// save 与读取共用 FileLoader 的路径解析，写回后下次 Load 可直接命中
func (l *SoundLoader) save(files audio.FileLoader, name string, data []byte) {
	path, err := files.Path(name)
	if err != nil {
		logging.Warnf("Catalog: skip saving generated sound: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logging.Warnf("Catalog: create sounds dir: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.Warnf("Catalog: save generated sound: %v", err)
		return
	}
	logging.Infof("Catalog: saved generated sound to %s", path)
}
