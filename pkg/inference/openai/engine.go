// Package openai implements engine.Engine on top of an OpenAI compatible
// chat completions API, streaming content deltas and running tool calls
// between rounds.
package openai

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxToolIterations = 5
)

const DefaultSystemPrompt = `You are a pet food recommendation assistant with HTTP capabilities. You can:

1. Fetch pet information from the pets API
2. Fetch available pet foods from the foods API
3. Analyze pet characteristics and recommend suitable foods
4. Provide detailed explanations for your recommendations
5. Continue conversations and answer follow-up questions

When making recommendations:
1. First get pet details with the search_pets tool
2. Then get available foods with the get_pet_foods tool
3. Match pet characteristics (age, size, breed, health conditions) with appropriate food types
4. Consider nutritional needs, dietary restrictions, and preferences
5. Provide clear reasoning for each recommendation

Format your response with:
- Pet information summary
- Top 3 food recommendations with explanations
- Any special dietary considerations
`

var ErrToolIterationLimit = errors.New("openai: tool iteration limit reached")

type Settings struct {
	Model             string  `mapstructure:"model"`
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	SystemPrompt      string  `mapstructure:"system_prompt"`
	// MaxToolIterations bounds the tool rounds of one generation. A generation
	// makes at most MaxToolIterations+1 completion requests.
	MaxToolIterations int     `mapstructure:"max_tool_iterations"`
	Temperature       float32 `mapstructure:"temperature"`
}

// Engine streams chat completions. One Engine is shared by all turns of a
// conversation and is safe for sequential use.
type Engine struct {
	client   *openai.Client
	settings Settings
	tools    map[string]engine.Tool
	defs     []openai.Tool
}

var _ engine.Engine = &Engine{}

func New(s Settings, tools []engine.Tool) (*Engine, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.SystemPrompt == "" {
		s.SystemPrompt = DefaultSystemPrompt
	}
	if s.MaxToolIterations <= 0 {
		s.MaxToolIterations = DefaultMaxToolIterations
	}
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}

	e := &Engine{
		client:   openai.NewClientWithConfig(cfg),
		settings: s,
		tools:    make(map[string]engine.Tool, len(tools)),
	}
	for _, t := range tools {
		e.tools[t.Name] = t
		e.defs = append(e.defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return e, nil
}

// NewFactory returns a factory building one engine per conversation.
func NewFactory(s Settings, tools []engine.Tool) engine.Factory {
	return func() (engine.Engine, error) {
		return New(s, tools)
	}
}

func (e *Engine) Generate(ctx context.Context, history []engine.Message, message string, obs engine.Observer) (engine.Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.settings.SystemPrompt})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == engine.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	s := &stream{
		ctx:      ctx,
		engine:   e,
		obs:      engine.ObserverOrNoop(obs),
		messages: msgs,
	}
	if err := s.openRound(); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) request(msgs []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       e.settings.Model,
		Messages:    msgs,
		Temperature: e.settings.Temperature,
		Stream:      true,
	}
	if len(e.defs) > 0 {
		req.Tools = e.defs
	}
	return req
}

// stream walks one or more completion rounds. A round that ends with tool
// calls runs the tools, appends their results and opens the next round.
type stream struct {
	ctx      context.Context
	engine   *Engine
	obs      engine.Observer
	messages []openai.ChatCompletionMessage

	upstream   *openai.ChatCompletionStream
	toolRounds int
	content    []byte
	calls      map[int]*openai.ToolCall
	done       bool
	closed     bool
}

func (s *stream) openRound() error {
	up, err := s.engine.client.CreateChatCompletionStream(s.ctx, s.engine.request(s.messages))
	if err != nil {
		return errors.Wrap(err, "openai: create chat completion stream")
	}
	s.upstream = up
	s.content = s.content[:0]
	s.calls = map[int]*openai.ToolCall{}
	return nil
}

func (s *stream) Recv() (string, error) {
	for {
		if s.closed || s.done || s.upstream == nil {
			return "", io.EOF
		}
		resp, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			_ = s.upstream.Close()
			s.upstream = nil
			if len(s.calls) == 0 {
				s.done = true
				return "", io.EOF
			}
			if err := s.runTools(); err != nil {
				s.done = true
				return "", err
			}
			continue
		}
		if err != nil {
			s.done = true
			return "", errors.Wrap(err, "openai: receive")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		for i, tc := range choice.Delta.ToolCalls {
			s.mergeToolCall(i, tc)
		}
		if choice.Delta.Content != "" {
			s.content = append(s.content, choice.Delta.Content...)
			s.obs.OnChunk(s.ctx, choice.Delta.Content)
			return choice.Delta.Content, nil
		}
	}
}

func (s *stream) mergeToolCall(pos int, delta openai.ToolCall) {
	idx := pos
	if delta.Index != nil {
		idx = *delta.Index
	}
	cur, ok := s.calls[idx]
	if !ok {
		cur = &openai.ToolCall{Type: openai.ToolTypeFunction}
		s.calls[idx] = cur
	}
	if delta.ID != "" {
		cur.ID = delta.ID
	}
	if delta.Type != "" {
		cur.Type = delta.Type
	}
	if delta.Function.Name != "" {
		cur.Function.Name += delta.Function.Name
	}
	cur.Function.Arguments += delta.Function.Arguments
}

func (s *stream) runTools() error {
	if s.toolRounds >= s.engine.settings.MaxToolIterations {
		return ErrToolIterationLimit
	}
	s.toolRounds++
	order := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		order = append(order, idx)
	}
	sort.Ints(order)

	calls := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		calls = append(calls, *s.calls[idx])
	}
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   string(s.content),
		ToolCalls: calls,
	})
	for _, call := range calls {
		s.obs.OnToolCall(s.ctx, call.Function.Name, call.Function.Arguments)
		result, err := s.engine.callTool(s.ctx, call)
		s.obs.OnToolResult(s.ctx, call.Function.Name, err)
		if err != nil {
			result = errorJSON(err)
		}
		s.messages = append(s.messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return s.openRound()
}

func (e *Engine) callTool(ctx context.Context, call openai.ToolCall) (string, error) {
	t, ok := e.tools[call.Function.Name]
	if !ok || t.Call == nil {
		return "", errors.Errorf("unknown tool %q", call.Function.Name)
	}
	return t.Call(ctx, call.Function.Arguments)
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.upstream != nil {
		return s.upstream.Close()
	}
	return nil
}
