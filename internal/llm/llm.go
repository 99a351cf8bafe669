// Package llm wraps Genkit model invocation behind a small gateway so the
// rest of the application deals in messages and text, not provider SDKs.
//
// The gateway is stateless: callers supply the full message sequence for
// each request and receive either a complete response or a stream of text
// fragments plus the accumulated final text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrGeneration indicates the model backend failed to produce a response.
// The underlying provider error is wrapped for logging; handlers should
// surface a generic message to clients.
var ErrGeneration = errors.New("generation failed")

// Options configures a Gateway.
type Options struct {
	ModelName   string  // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Temperature float32
	MaxTokens   int
	Logger      *slog.Logger
}

// Gateway sends generation requests to the configured model.
type Gateway struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// New creates a Gateway backed by an initialized Genkit instance.
func New(g *genkit.Genkit, opts Options) (*Gateway, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if opts.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		g:           g,
		modelName:   opts.ModelName,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      logger,
	}, nil
}

// ModelName returns the provider-qualified model identifier.
func (gw *Gateway) ModelName() string {
	return gw.modelName
}

// Generate sends the message sequence to the model and returns the complete
// response text.
func (gw *Gateway) Generate(ctx context.Context, msgs []*ai.Message) (string, error) {
	return gw.generate(ctx, msgs, nil)
}

// GenerateStream sends the message sequence to the model, invoking onChunk
// for each text fragment as it arrives. It returns the accumulated full
// response text once the model finishes.
//
// An error from onChunk aborts generation and is returned to the caller
// unwrapped, so a client disconnect can be told apart from a model failure.
func (gw *Gateway) GenerateStream(ctx context.Context, msgs []*ai.Message, onChunk func(string) error) (string, error) {
	if onChunk == nil {
		return "", fmt.Errorf("onChunk callback is required")
	}
	return gw.generate(ctx, msgs, onChunk)
}

func (gw *Gateway) generate(ctx context.Context, msgs []*ai.Message, onChunk func(string) error) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: no messages to send", ErrGeneration)
	}

	var callbackErr error

	opts := []ai.GenerateOption{
		ai.WithModelName(gw.modelName),
		ai.WithMessages(msgs...),
	}
	// Unset tuning values are left to the provider's defaults; an explicit
	// zero would be a real cap for some backends.
	config := map[string]any{}
	if gw.temperature > 0 {
		config["temperature"] = gw.temperature
	}
	if gw.maxTokens > 0 {
		config["maxOutputTokens"] = gw.maxTokens
	}
	if len(config) > 0 {
		opts = append(opts, ai.WithConfig(config))
	}
	if onChunk != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			if err := onChunk(text); err != nil {
				callbackErr = err
				return err
			}
			return nil
		}))
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, gw.g, opts...)
	if err != nil {
		// Consumer abort (e.g. client disconnect) is not a model failure.
		if callbackErr != nil {
			return "", callbackErr
		}
		gw.logger.Error("model request failed",
			"model", gw.modelName,
			"messages", len(msgs),
			"error", err)
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	gw.logger.Debug("model request complete",
		"model", gw.modelName,
		"messages", len(msgs),
		"duration", time.Since(start))

	return resp.Text(), nil
}
