package selector

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/liuscraft/orion-mashup/internal/mashup"
)

type mockChatModel struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	lastInput   []*schema.Message
	temperature float32
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastInput = input
	if o := model.GetCommonOptions(nil, opts...); o.Temperature != nil {
		m.temperature = *o.Temperature
	}
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *mockChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type mockSelector struct {
	mu     sync.Mutex
	result []mashup.Selection
	err    error
	calls  int
}

func (m *mockSelector) Select(context.Context, []string, []string) ([]mashup.Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}
