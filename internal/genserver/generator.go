package genserver

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Image is one uploaded picture with its sniffed media type.
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

// Input is what a generator turns into test cases.
type Input struct {
	PRDText      string
	Images       []Image
	Context      string
	Requirements string
}

// Generator streams model output for in, calling onDelta with each piece
// of text in order.
type Generator interface {
	Generate(ctx context.Context, in Input, onDelta func(string)) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, in Input, onDelta func(string)) error

func (f GeneratorFunc) Generate(ctx context.Context, in Input, onDelta func(string)) error {
	return f(ctx, in, onDelta)
}

type AnthropicStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

type AnthropicClientCreator func(apiKey string) AnthropicStreamer

func defaultAnthropicCreator(apiKey string) AnthropicStreamer {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

const DefaultModel = anthropic.ModelClaudeSonnet4_20250514

type AnthropicGenerator struct {
	messages  AnthropicStreamer
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicGeneratorFromEnv reads ANTHROPIC_API_KEY. An empty model
// selects DefaultModel; maxTokens <= 0 selects 8192.
func NewAnthropicGeneratorFromEnv(model string, maxTokens int64) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return NewAnthropicGenerator(newAnthropicClient(apiKey), model, maxTokens), nil
}

func NewAnthropicGenerator(messages AnthropicStreamer, model string, maxTokens int64) *AnthropicGenerator {
	m := anthropic.Model(strings.TrimSpace(model))
	if m == "" {
		m = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicGenerator{messages: messages, model: m, maxTokens: maxTokens}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, in Input, onDelta func(string)) error {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(UserPrompt(in))}
	for _, img := range in.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	stream := g.messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	defer stream.Close()

	for stream.Next() {
		ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
			onDelta(delta.Text)
		}
	}
	return stream.Err()
}
