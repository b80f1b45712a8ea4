// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Progress tracks the stages of the current turn.
type Progress struct {
	// Active holds stages that are running.
	Active map[Stage]struct{}
	// Completed holds stages that finished successfully.
	Completed map[Stage]struct{}
	// Failed maps stages to failure reasons.
	Failed map[Stage]string
	// Order preserves the sequence in which stages were started.
	Order []Stage
	mu    sync.Mutex
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{
		Active:    make(map[Stage]struct{}),
		Completed: make(map[Stage]struct{}),
		Failed:    make(map[Stage]string),
	}
}

// Reset clears all state for a new turn.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Active = make(map[Stage]struct{})
	p.Completed = make(map[Stage]struct{})
	p.Failed = make(map[Stage]string)
	p.Order = nil
}

// Start marks a stage as running.
func (p *Progress) Start(s Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Active[s]; !ok {
		p.Order = append(p.Order, s)
	}
	p.Active[s] = struct{}{}
}

// Complete marks a stage as done.
func (p *Progress) Complete(s Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Active, s)
	p.Completed[s] = struct{}{}
}

// Fail marks a stage as failed with a reason.
func (p *Progress) Fail(s Stage, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Active, s)
	p.Failed[s] = reason
}

// State returns the state of s and whether it was started at all.
func (p *Progress) State(s Stage) (StageState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Active[s]; ok {
		return StateRunning, true
	}
	if _, ok := p.Completed[s]; ok {
		return StateDone, true
	}
	if _, ok := p.Failed[s]; ok {
		return StateFailed, true
	}
	return "", false
}

// Running returns the active stages in start order.
func (p *Progress) Running() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Stage
	for _, s := range p.Order {
		if _, ok := p.Active[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// HasFailures reports whether any stage failed.
func (p *Progress) HasFailures() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Failed) > 0
}

// apply records ev.
func (p *Progress) apply(ev Event) {
	if ev.Type != EventStage {
		return
	}
	switch ev.State {
	case StateRunning:
		p.Start(ev.Stage)
	case StateDone:
		p.Complete(ev.Stage)
	case StateFailed:
		p.Fail(ev.Stage, ev.Message)
	}
}

// LineState pads status lines so a shorter line fully overwrites a longer
// one on the same terminal row.
type LineState struct {
	frame  int
	maxLen int
	mu     sync.Mutex
}

// Frame advances and returns the spinner frame index.
func (l *LineState) Frame() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame++
	return l.frame
}

// Pad returns line padded to the longest line seen so far.
func (l *LineState) Pad(line string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := utf8.RuneCountInString(line)
	if n > l.maxLen {
		l.maxLen = n
	}
	return line + strings.Repeat(" ", l.maxLen-n)
}
