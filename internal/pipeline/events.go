// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline coordinates one analytical turn: drafting candidate
// queries, validating them, executing the accepted batch and fanning out to
// the explanation, chart and insight generators.
//
// A Coordinator is short-lived state held in memory for the duration of a
// turn. Progress is reported through Events on an optional channel, and a
// Progress tracker records which stages ran, completed or failed so the CLI
// can render a status line.
package pipeline

// Stage is a step of the per-turn state machine.
type Stage string

const (
	StageDrafting    Stage = "drafting"
	StageValidating  Stage = "validating"
	StageExecuting   Stage = "executing"
	StageExecuted    Stage = "executed"
	StageExplaining  Stage = "explaining"
	StageVisualizing Stage = "visualizing"
	StageAnalyzing   Stage = "analyzing"
	StageCompleted   Stage = "completed"
	StageAborted     Stage = "aborted"
)

// Artifacts are the fan-out stages, in display order.
var Artifacts = []Stage{StageExplaining, StageVisualizing, StageAnalyzing}

// StageState is the status of a single stage.
type StageState string

const (
	StateRunning StageState = "running"
	StateDone    StageState = "done"
	StateFailed  StageState = "failed"
)

// EventType enumerates coordinator event kinds.
type EventType string

const (
	// EventStage reports a stage state change.
	EventStage EventType = "stage"
	// EventVerdict reports the safety verdict for one candidate.
	EventVerdict EventType = "verdict"
	// EventTurn reports the terminal state of the turn.
	EventTurn EventType = "turn"
)

// Event is a generic container for progress events.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type   EventType  `json:"type"`
	TurnID string     `json:"turn_id"`
	Stage  Stage      `json:"stage,omitempty"`
	State  StageState `json:"state,omitempty"`

	// Message is a short human-readable note, e.g. an error.
	Message string `json:"message,omitempty"`

	// Verdict
	Query    string `json:"query,omitempty"`
	Accepted bool   `json:"accepted,omitempty"`
}
