// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package grpcgen provides a generation.Service backed by a remote structured
// generation server reached over gRPC.
//
// The wire contract is a single unary method,
// /taproom.generation.v1.StructuredGeneration/Generate, whose request and
// response are google.protobuf.Struct messages. The request carries
// schema_name, system_prompt, history (a list of {role, content}),
// current_prompt and output_schema (a JSON-schema document). The response
// carries either "output" (a Struct conforming to the schema) or "json" (the
// same document as text).
package grpcgen

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"taproom/cli/internal/generation"
)

// GenerateMethod is the full gRPC method name.
const GenerateMethod = "/taproom.generation.v1.StructuredGeneration/Generate"

// Client implements generation.Service over a gRPC connection.
type Client struct {
	conn    *grpc.ClientConn
	addr    string
	token   string
	timeout time.Duration
	log     *zap.Logger
}

// Options configures Dial.
type Options struct {
	// Token is sent as a bearer authorization header when set.
	Token string
	// Insecure disables TLS, for local endpoints.
	Insecure bool
	// Timeout bounds each Generate call. Zero disables the bound.
	Timeout time.Duration
	Logger  *zap.Logger
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Dial creates a client for addr. A missing port defaults to 443 for TLS
// endpoints. The connection is established lazily on first use.
func Dial(addr string, opts Options) (*Client, error) {
	if addr == "" {
		return nil, errors.New("generation endpoint is required")
	}
	target := addr
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	} else if !opts.Insecure {
		target = net.JoinHostPort(addr, "443")
	}

	var creds credentials.TransportCredentials
	if opts.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial generation service %s: %w", addr, err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{conn: conn, addr: addr, token: opts.Token, timeout: opts.Timeout, log: log}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "grpc:" + c.addr }

// Close releases the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Generate performs one unary call and returns the conforming JSON document.
func (c *Client) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := &structpb.Struct{}
	start := time.Now()
	if err := c.conn.Invoke(ctx, GenerateMethod, in, out); err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, fmt.Errorf("generation service %s: %s: %w", st.Code(), st.Message(), err)
		}
		return nil, fmt.Errorf("generation service: %w", err)
	}
	c.log.Debug("grpc generation response",
		zap.String("schema", req.SchemaName),
		zap.Duration("elapsed", time.Since(start)))
	return decodeResponse(out)
}

func encodeRequest(req generation.Request) (*structpb.Struct, error) {
	history := make([]any, len(req.History))
	for i, t := range req.History {
		history[i] = map[string]any{"role": string(t.Role), "content": t.Content}
	}
	fields := map[string]any{
		"schema_name":    req.SchemaName,
		"system_prompt":  req.SystemPrompt,
		"history":        history,
		"current_prompt": req.CurrentPrompt,
	}
	if req.Schema != nil {
		fields["output_schema"] = req.Schema.JSONSchema()
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}
	return s, nil
}

func decodeResponse(out *structpb.Struct) ([]byte, error) {
	if v, ok := out.GetFields()["output"]; ok {
		b, err := json.Marshal(v.AsInterface())
		if err != nil {
			return nil, fmt.Errorf("decode generation response: %w", err)
		}
		return b, nil
	}
	if v, ok := out.GetFields()["json"]; ok && v.GetStringValue() != "" {
		return []byte(v.GetStringValue()), nil
	}
	return nil, errors.New("generation service returned no output")
}
