// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"errors"
	"sync"

	"taproom/cli/internal/planner"
)

// ErrSuperseded is returned for a turn abandoned because a newer one was
// submitted.
var ErrSuperseded = errors.New("turn superseded by newer input")

// History is the caller-owned conversation history. Only completed turns are
// appended.
type History struct {
	mu    sync.Mutex
	turns []planner.PriorTurn
}

// NewHistory returns an empty history.
func NewHistory() *History { return &History{} }

// Append records a completed turn. Other outcomes are ignored.
func (h *History) Append(o *Outcome) {
	if o == nil || !o.Completed() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, PriorTurn(o))
}

// Turns returns a copy of the recorded turns, oldest first.
func (h *History) Turns() []planner.PriorTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]planner.PriorTurn(nil), h.turns...)
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear removes every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// PriorTurn converts a completed outcome into the form replayed to the
// planner. The sample is the first row of the first result.
func PriorTurn(o *Outcome) planner.PriorTurn {
	t := planner.PriorTurn{UserText: o.UserText}
	for _, q := range o.Queries {
		t.Queries = append(t.Queries, q.CandidateQuery)
	}
	if len(o.Results) > 0 {
		first := o.Results[0]
		t.RowCount = len(first.Rows)
		if len(first.Rows) > 0 {
			t.Sample = first.Rows[0]
		}
	}
	if o.Report != nil {
		t.Reply = o.Report.Summary
	}
	return t
}

// Session runs turns one at a time against a shared history. Submitting a
// new turn cancels the one in flight; the abandoned turn reports
// ErrSuperseded and is never appended to the history.
type Session struct {
	coord   *Coordinator
	history *History

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewSession creates a Session. A nil history starts empty.
func NewSession(c *Coordinator, h *History) *Session {
	if h == nil {
		h = NewHistory()
	}
	return &Session{coord: c, history: h}
}

// History returns the session history.
func (s *Session) History() *History { return s.history }

// Submit runs a turn for text, superseding any turn still in flight.
func (s *Session) Submit(ctx context.Context, text string) (*Outcome, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	id := s.seq
	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	out, err := s.coord.Run(tctx, text, s.history.Turns())

	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.seq {
		return out, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		return out, err
	}
	s.history.Append(out)
	return out, nil
}

// Cancel abandons the turn in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
