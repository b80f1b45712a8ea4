// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package gemini implements generation.Service on top of the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"taproom/cli/internal/generation"
)

const DefaultModel = "gemini-2.5-flash"

// models is the subset of *genai.Models used here.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is a Gemini-backed structured generation service.
type Client struct {
	models  models
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each Generate call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newClient(gc.Models, opts...), nil
}

func newClient(m models, opts ...Option) *Client {
	c := &Client{models: m, model: DefaultModel, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "gemini:" + c.model
}

// Generate sends the request and returns the JSON text of the first candidate.
func (c *Client) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		contents = append(contents, genai.NewContentFromText(t.Content, role(t.Role)))
	}
	contents = append(contents, genai.NewContentFromText(req.CurrentPrompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   convert(req.Schema),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate %s: %w", req.SchemaName, err)
	}
	text := resp.Text()
	c.log.Debug("gemini response",
		zap.String("schema", req.SchemaName),
		zap.Int("turns", len(contents)),
		zap.Int("bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	if text == "" {
		return nil, fmt.Errorf("gemini returned no content for %s", req.SchemaName)
	}
	return []byte(text), nil
}

// role maps conversation roles onto Gemini's user/model pair. System turns in
// history are replayed as user text.
func role(r generation.Role) genai.Role {
	if r == generation.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func convert(s *generation.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description:      s.Description,
		Enum:             s.Enum,
		Required:         s.Required,
		PropertyOrdering: s.Order,
		Items:            convert(s.Items),
	}
	switch s.Type {
	case generation.TypeObject:
		out.Type = genai.TypeObject
	case generation.TypeArray:
		out.Type = genai.TypeArray
	case generation.TypeNumber:
		out.Type = genai.TypeNumber
	case generation.TypeInteger:
		out.Type = genai.TypeInteger
	case generation.TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, p := range s.Properties {
			out.Properties[k] = convert(p)
		}
	}
	return out
}
