package envelope

import (
	"time"
)

// EventType names a flow transition.
type EventType string

const (
	EventFlowStarted       EventType = "flow_started"
	EventStageCompleted    EventType = "stage_completed"
	EventRefinementDecided EventType = "refinement_decided"
	EventFlowFinalized     EventType = "flow_finalized"
)

// FlowEvent is emitted by the orchestrator on every transition.
type FlowEvent struct {
	Type           EventType      `json:"type"`
	RunID          string         `json:"run_id"`
	Stage          Stage          `json:"stage,omitempty"`
	Attempt        int            `json:"attempt,omitempty"`
	Kind           ResultKind     `json:"kind,omitempty"`
	Cause          string         `json:"cause,omitempty"`
	Decision       string         `json:"decision,omitempty"`
	Target         Stage          `json:"target,omitempty"`
	Score          *int           `json:"score,omitempty"`
	TerminalReason TerminalReason `json:"terminal_reason,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// RunStatus is the lifecycle state of a persisted run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

// RunRecord is the persisted account of one run.
type RunRecord struct {
	RunID          string         `json:"run_id"`
	Status         RunStatus      `json:"status"`
	Config         map[string]any `json:"config"`
	Artifact       *FinalArtifact `json:"artifact,omitempty"`
	History        []Snapshot     `json:"history,omitempty"`
	IterationCount map[Stage]int  `json:"iteration_count,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}
