package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
)

// LLMConfig OpenAI 兼容接口配置
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIChatModel 创建 OpenAI 兼容的 ChatModel
func NewOpenAIChatModel(ctx context.Context, cfg LLMConfig) (model.BaseChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return chatModel, nil
}

const singleSystemPrompt = `You are selecting ONE word from this quote to replace with a {effect} sound.

RULES (VERY IMPORTANT):
- Split the quote into words by spaces
- Choose ONE word index (0-based)
- Prefer verbs, nouns, or emotional adjectives
- Avoid articles, pronouns, and filler words
- Pick the FUNNIEST and most unexpected choice
- Do NOT explain
- Return ONLY a single integer number

Example:
Quote: "I'm gonna make him an offer he can't refuse"
Valid output: 4`

const chaosSystemPrompt = `You are selecting {count} words from this quote to replace with animal sounds. For each word, you must also choose which animal sound fits best.

AVAILABLE ANIMALS: {effects}

RULES (VERY IMPORTANT):
- Split the quote into words by spaces (0-based indexing)
- Select {count} different word indices
- For each selected word, choose the most fitting animal from the available list
- Prefer verbs, nouns, or emotional adjectives for replacement
- Avoid articles, pronouns, and filler words
- Pick FUNNY and unexpected combinations
- Each word index must be unique
- Return ONLY a JSON array in this exact format:
{format}

Example:
Quote: "I'm gonna make him an offer he can't refuse"
Valid output: {example}`

const (
	chaosFormat  = `[{"index": 2, "animal": "Lion"}, {"index": 5, "animal": "Dog"}]`
	chaosExample = `[{"index": 4, "animal": "Lion"}, {"index": 7, "animal": "Dog"}]`
)

func singleTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(singleSystemPrompt),
		schema.UserMessage("QUOTE:\n\"{quote}\""),
	)
}

func chaosTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(chaosSystemPrompt),
		schema.UserMessage("QUOTE:\n\"{quote}\""),
	)
}

// llmSelector 通过 ChatModel 选词
type llmSelector struct {
	chatModel model.BaseChatModel
	config    *Config
	rnd       *lockedRand
}

// NewLLMSelector 创建 LLM 选词器
func NewLLMSelector(chatModel model.BaseChatModel, config *Config) Selector {
	if config == nil {
		config = DefaultConfig()
	}
	return &llmSelector{
		chatModel: chatModel,
		config:    config,
		rnd:       newLockedRand(config.Rand),
	}
}

func (s *llmSelector) Select(ctx context.Context, words []string, effects []string) ([]mashup.Selection, error) {
	if len(words) == 0 || len(effects) == 0 {
		return nil, fmt.Errorf("%w: quote and effects are required", mashup.ErrSelection)
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	if s.config.Mode == ModeChaos {
		return s.selectChaos(ctx, words, effects)
	}
	return s.selectSingle(ctx, words, effects)
}

func (s *llmSelector) selectSingle(ctx context.Context, words []string, effects []string) ([]mashup.Selection, error) {
	messages, err := singleTemplate().Format(ctx, map[string]any{
		"effect": effects[0],
		"quote":  strings.Join(words, " "),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: format prompt: %v", mashup.ErrSelection, err)
	}

	reply, err := s.generate(ctx, messages, s.config.Temperature, 5)
	if err != nil {
		return nil, err
	}
	idx, err := ParseSingleReply(reply, len(words))
	if err != nil {
		return nil, err
	}
	logging.Infof("Selector: single pick %d (%q) -> %s", idx, words[idx], effects[0])
	return []mashup.Selection{{WordIndex: idx, Effect: effects[0]}}, nil
}

func (s *llmSelector) selectChaos(ctx context.Context, words []string, effects []string) ([]mashup.Selection, error) {
	count := ReplacementCount(ModeChaos, len(words), s.rnd)
	messages, err := chaosTemplate().Format(ctx, map[string]any{
		"count":   count,
		"effects": strings.Join(effects, ", "),
		"format":  chaosFormat,
		"example": chaosExample,
		"quote":   strings.Join(words, " "),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: format prompt: %v", mashup.ErrSelection, err)
	}

	reply, err := s.generate(ctx, messages, s.config.ChaosTemperature, 200)
	if err != nil {
		return nil, err
	}
	selections, err := ParseChaosReply(reply, words, effects)
	if err != nil {
		return nil, err
	}
	logging.Infof("Selector: chaos picked %d/%d replacements %v", len(selections), count, selections)
	return selections, nil
}

func (s *llmSelector) generate(ctx context.Context, messages []*schema.Message, temperature float32, maxTokens int) (string, error) {
	start := time.Now()
	resp, err := s.chatModel.Generate(ctx, messages,
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: generate: %v", mashup.ErrSelection, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", mashup.ErrSelection)
	}
	logging.Debugf("Selector: model replied in %v: %s", time.Since(start), truncate(resp.Content, 200))
	return resp.Content, nil
}
