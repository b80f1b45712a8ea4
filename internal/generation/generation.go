// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package generation defines the structured generation service boundary.
// A Service receives a system prompt, prior conversation turns, the current
// prompt and a target output schema, and returns JSON that conforms to the
// schema. It is the only place the pipeline talks to a model provider.
//
// Implementations live in subpackages: gemini (google.golang.org/genai) and
// grpcgen (a remote generation backend reached over gRPC).
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single structured generation call.
type Request struct {
	// SchemaName identifies the output shape (e.g. "candidate_queries").
	SchemaName    string
	SystemPrompt  string
	History       []Turn
	CurrentPrompt string
	Schema        *Schema
}

// Service produces schema-conforming JSON.
// Implementations must honour ctx cancellation.
type Service interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
	// Name returns the provider name for display.
	Name() string
}

// Decode extracts JSON from a raw response into v.
// Markdown code fences around the payload are tolerated.
func Decode(raw []byte, v any) error {
	text := strings.TrimSpace(string(raw))
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("failed to parse structured response: %w (response: %.200s)", err, text)
	}
	return nil
}
