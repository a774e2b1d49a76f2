package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/liuscraft/orion-mashup/internal/tts"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

// VoiceSettings 选中该效果时朗读台词使用的音色参数
type VoiceSettings struct {
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	Speed           float64 `yaml:"speed"`
	Pitch           float64 `yaml:"pitch"`
}

// Effect 一个可替换单词的音效
type Effect struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	Sound   string        `yaml:"sound"`
	Prompt  string        `yaml:"prompt"`
	HardCap float64       `yaml:"hard_cap"`
	Voice   VoiceSettings `yaml:"voice"`
}

// VoiceParams 转换为合成参数，voiceID 为空时使用供应商默认音色
func (e Effect) VoiceParams(voiceID string) tts.VoiceParams {
	return tts.VoiceParams{
		VoiceID:         voiceID,
		Stability:       e.Voice.Stability,
		SimilarityBoost: e.Voice.SimilarityBoost,
		Style:           e.Voice.Style,
		Speed:           e.Voice.Speed,
		Pitch:           e.Voice.Pitch,
	}
}

type Quote struct {
	ID     string `yaml:"id"`
	Text   string `yaml:"text"`
	Source string `yaml:"source"`
	Type   string `yaml:"type"`
}

type Catalog struct {
	Effects []Effect `yaml:"effects"`
	Quotes  []Quote  `yaml:"quotes"`
}

// Default 解析内置目录
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load 读取 path 指定的目录文件；path 为空时返回内置目录
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Effects) == 0 {
		return fmt.Errorf("%w: no effects", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Effects))
	for i, e := range c.Effects {
		if e.ID == "" {
			return fmt.Errorf("%w: effect %d has no id", ErrInvalidCatalog, i)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate effect %q", ErrInvalidCatalog, e.ID)
		}
		seen[e.ID] = true
		if e.Sound == "" && e.Prompt == "" {
			return fmt.Errorf("%w: effect %q needs a sound file or a prompt", ErrInvalidCatalog, e.ID)
		}
		if e.Sound != "" && !filepath.IsLocal(e.Sound) {
			return fmt.Errorf("%w: effect %q sound must be relative to the sounds dir", ErrInvalidCatalog, e.ID)
		}
		if e.HardCap < 0 {
			return fmt.Errorf("%w: effect %q has negative hard_cap", ErrInvalidCatalog, e.ID)
		}
	}
	for i, q := range c.Quotes {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: quote %d is empty", ErrInvalidCatalog, i)
		}
	}
	return nil
}

func (c *Catalog) Effect(id string) (Effect, bool) {
	for _, e := range c.Effects {
		if strings.EqualFold(e.ID, id) {
			return e, true
		}
	}
	return Effect{}, false
}

func (c *Catalog) EffectIDs() []string {
	ids := make([]string, len(c.Effects))
	for i, e := range c.Effects {
		ids[i] = e.ID
	}
	return ids
}

func (c *Catalog) Quote(id string) (Quote, bool) {
	for _, q := range c.Quotes {
		if q.ID == id {
			return q, true
		}
	}
	return Quote{}, false
}

// RandomQuote 随机取一句台词，尽量不与 lastID 重复（最多尝试 5 次）
func (c *Catalog) RandomQuote(r *rand.Rand, lastID string) (Quote, bool) {
	if len(c.Quotes) == 0 {
		return Quote{}, false
	}
	intn := rand.IntN
	if r != nil {
		intn = r.IntN
	}
	var q Quote
	for attempt := 0; attempt < 5; attempt++ {
		q = c.Quotes[intn(len(c.Quotes))]
		if q.ID != lastID || len(c.Quotes) == 1 {
			break
		}
	}
	return q, true
}
