// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransportError categorizes failures reaching the generation service or the
// database.
type TransportError int

const (
	TransportUnknown TransportError = iota
	TransportNetwork
	TransportAuth
	TransportTimeout
	TransportRateLimited
	TransportUnavailable
	TransportInternal
)

// ClassifyTransport inspects err for gRPC status codes, network errors and
// well-known HTTP failure messages returned by the Gemini API.
func ClassifyTransport(err error) TransportError {
	if err == nil {
		return TransportUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return TransportTimeout
	case codes.Unauthenticated, codes.PermissionDenied:
		return TransportAuth
	case codes.ResourceExhausted:
		return TransportRateLimited
	case codes.Unavailable:
		return TransportUnavailable
	case codes.Internal:
		return TransportInternal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return TransportNetwork
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"), strings.Contains(lower, "rst_stream"):
		return TransportNetwork
	case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timeout"):
		return TransportTimeout
	case strings.Contains(lower, "api key not valid"), strings.Contains(lower, "unauthenticated"),
		strings.Contains(lower, "error 401"), strings.Contains(lower, "error 403"):
		return TransportAuth
	case strings.Contains(lower, "error 429"), strings.Contains(lower, "resource_exhausted"), strings.Contains(lower, "quota"):
		return TransportRateLimited
	case strings.Contains(lower, "error 503"), strings.Contains(lower, "unavailable"), strings.Contains(lower, "overloaded"):
		return TransportUnavailable
	case strings.Contains(lower, "error 500"), strings.Contains(lower, "internal_error"), strings.Contains(lower, "internal server error"):
		return TransportInternal
	}
	return TransportUnknown
}

// transportHints returns a title and troubleshooting lines for t.
func transportHints(t TransportError) (string, []string) {
	switch t {
	case TransportNetwork:
		return "Connection failed", []string{
			"Check that the service address is correct and reachable",
			"A firewall or proxy may be closing the connection",
		}
	case TransportAuth:
		return "Authentication failed", []string{
			"Set GEMINI_API_KEY or run 'taproom connect --api-key' to store a key",
			"The key may have been revoked or lack access to the model",
		}
	case TransportTimeout:
		return "Request timed out", []string{
			"The service took too long to respond",
			"Raise generation.timeout or artifacts.timeout in the config file",
		}
	case TransportRateLimited:
		return "Rate limited", []string{"The generation quota is exhausted; wait a moment and try again"}
	case TransportUnavailable:
		return "Service unavailable", []string{"The generation service is overloaded or under maintenance; try again shortly"}
	case TransportInternal:
		return "Service error", []string{"The generation service failed to process the request; try again"}
	}
	return "", nil
}
