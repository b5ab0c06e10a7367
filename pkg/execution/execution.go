// Package execution defines the execution record, its status machine,
// and the typed output produced when a run finishes.
package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrInvalidTransition is returned when a status change would move
	// backwards or out of a terminal state
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status represents the lifecycle stage of an execution
type Status string

// Execution statuses
const (
	// StatusPending means the execution has been created but not yet dispatched
	StatusPending Status = "pending"

	// StatusProcessing means the engine has accepted the request
	StatusProcessing Status = "processing"

	// StatusCompleted means the execution finished with a result
	StatusCompleted Status = "completed"

	// StatusFailed means the execution finished with an error
	StatusFailed Status = "failed"
)

// Terminal returns true if the status is completed or failed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether a change to next is allowed.
// Transitions are monotonic: pending -> processing -> {completed, failed},
// with pending allowed to jump straight to a terminal state when the
// engine answers immediately.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		// Terminal states never transition
		return false
	}
}

// Input is the caller-supplied request for an execution
type Input struct {
	// Prompt is the free-text instruction, if any
	Prompt string `json:"prompt,omitempty"`

	// Parameters holds named values consumed by the agent's input schema
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Clone returns a copy of the input with its own parameters map
func (in Input) Clone() Input {
	clone := Input{Prompt: in.Prompt}
	if in.Parameters != nil {
		clone.Parameters = make(map[string]interface{}, len(in.Parameters))
		for k, v := range in.Parameters {
			clone.Parameters[k] = v
		}
	}
	return clone
}

// Error records why an execution failed
type Error struct {
	// Code is the failure classification
	Code string `json:"code"`

	// Message is a human-readable description
	Message string `json:"message"`

	// Details carries diagnostic payload, if any
	Details interface{} `json:"details,omitempty"`
}

// Execution is one run of an agent from submission to terminal result
type Execution struct {
	// ID uniquely identifies the execution
	ID string `json:"id"`

	// AgentID is the agent this execution belongs to
	AgentID string `json:"agentId"`

	// Status is the current lifecycle stage
	Status Status `json:"status"`

	// Input is what the caller submitted
	Input Input `json:"input"`

	// Output is the result; set only when the execution completed
	Output *Output `json:"output,omitempty"`

	// Error is the failure record; set only when the execution failed
	Error *Error `json:"error,omitempty"`

	// CreatedAt is when the execution was created
	CreatedAt time.Time `json:"createdAt"`

	// CompletedAt is when the execution reached a terminal status
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// RemoteID is the engine-side execution id, when reported
	RemoteID string `json:"remoteId,omitempty"`

	// PollURL is where the engine's job status can be fetched, when reported
	PollURL string `json:"pollUrl,omitempty"`
}

// New creates a pending execution for an agent
func New(agentID string, input Input) *Execution {
	return &Execution{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Status:    StatusPending,
		Input:     input.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a structurally new copy of the execution.
// Readers always receive clones so in-place mutation never leaks.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Input = e.Input.Clone()
	if e.Output != nil {
		clone.Output = e.Output.Clone()
	}
	if e.Error != nil {
		errCopy := *e.Error
		clone.Error = &errCopy
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// MarkProcessing moves the execution from pending to processing
func (e *Execution) MarkProcessing() error {
	return e.transition(StatusProcessing)
}

// Complete moves the execution to completed and records its output
func (e *Execution) Complete(output *Output) error {
	if err := e.transition(StatusCompleted); err != nil {
		return err
	}
	e.Output = output
	now := time.Now().UTC()
	e.CompletedAt = &now
	return nil
}

// Fail moves the execution to failed and records the failure
func (e *Execution) Fail(execErr *Error) error {
	if err := e.transition(StatusFailed); err != nil {
		return err
	}
	e.Error = execErr
	now := time.Now().UTC()
	e.CompletedAt = &now
	return nil
}

// transition applies a status change after checking it is allowed
func (e *Execution) transition(next Status) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	return nil
}

// Patch is a partial update applied through the record's transition methods
type Patch struct {
	// Status is the target status, if the update changes it
	Status *Status

	// Output accompanies a transition to completed
	Output *Output

	// Error accompanies a transition to failed
	Error *Error

	// RemoteID sets the engine-side execution id
	RemoteID *string

	// PollURL sets the engine-side poll location
	PollURL *string
}

// Apply applies a patch to the execution. Re-applying a patch whose
// target status already holds is a no-op refresh, so updates are
// idempotent; transitions that would move backwards are rejected.
func (e *Execution) Apply(p Patch) error {
	if p.RemoteID != nil {
		e.RemoteID = *p.RemoteID
	}
	if p.PollURL != nil {
		e.PollURL = *p.PollURL
	}
	if p.Status == nil {
		return nil
	}

	target := *p.Status
	if target == e.Status {
		// Same-status re-application refreshes the payload fields only
		if p.Output != nil {
			e.Output = p.Output
		}
		if p.Error != nil {
			e.Error = p.Error
		}
		return nil
	}

	switch target {
	case StatusProcessing:
		return e.MarkProcessing()
	case StatusCompleted:
		return e.Complete(p.Output)
	case StatusFailed:
		return e.Fail(p.Error)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, target)
	}
}
