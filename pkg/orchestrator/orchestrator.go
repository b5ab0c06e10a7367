// Package orchestrator drives agent executions end to end: resolve the
// agent, validate the input, build the outbound payload, trigger the
// engine, interpret the response, and track the execution through its
// terminal state.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/metrics"
	"github.com/dmarceau/agentrunner/pkg/state"
	"github.com/dmarceau/agentrunner/pkg/transport"
)

// DefaultPollInterval is the wait between job status queries when neither
// the agent nor the orchestrator configures one
const DefaultPollInterval = 5000 * time.Millisecond

// ExecutionFailedCode is the code written onto an execution's failure
// record; the classified cause lives in the record's details
const ExecutionFailedCode = "EXECUTION_FAILED"

// EngineClient is the transport surface the orchestrator drives
type EngineClient interface {
	// Trigger POSTs a JSON payload to an agent's webhook
	Trigger(ctx context.Context, webhookURL string, payload map[string]interface{}) (*transport.EngineResponse, error)

	// FetchStatus GETs a job's status from its poll URL
	FetchStatus(ctx context.Context, pollURL string) (*transport.EngineResponse, error)
}

// Options tunes an orchestrator
type Options struct {
	// PollInterval overrides the default wait between status queries
	PollInterval time.Duration

	// RetryDelay overrides the retry policy's wait before the first
	// retry; zero keeps the policy default
	RetryDelay time.Duration

	// ArtifactsDir is where raw binary payloads are written
	ArtifactsDir string

	// Logger receives execution lifecycle logs
	Logger logging.Logger

	// Metrics receives execution observations
	Metrics metrics.Recorder
}

// Orchestrator coordinates agent executions against the engine and
// records every lifecycle transition in the state container
type Orchestrator struct {
	registry     agent.Registry
	client       EngineClient
	container    *state.Container
	artifacts    *ArtifactStore
	pollInterval time.Duration
	retryDelay   time.Duration
	logger       logging.Logger
	metrics      metrics.Recorder
}

// New creates an orchestrator
func New(registry agent.Registry, client EngineClient, container *state.Container, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Orchestrator{
		registry:     registry,
		client:       client,
		container:    container,
		artifacts:    NewArtifactStore(opts.ArtifactsDir),
		pollInterval: opts.PollInterval,
		retryDelay:   opts.RetryDelay,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
}

// ExecuteAgent runs the named agent against the given input. The returned
// execution reflects the outcome: completed with a typed output, failed
// with a failure record (the cause is returned alongside), or left
// processing when the engine reported a long-running job that could not
// be awaited. Cancelling ctx aborts in-flight triggers, retry waits, and
// poll loops.
func (o *Orchestrator) ExecuteAgent(ctx context.Context, agentID string, input execution.Input) (*execution.Execution, error) {
	cfg, err := o.registry.Lookup(agentID)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeAgentNotFound, fmt.Sprintf("agent %q is not registered", agentID), err)
	}
	if !cfg.IsEnabled() {
		return nil, agenterrors.Newf(agenterrors.CodeAgentUnavailable, "agent %q is disabled", agentID)
	}
	if err := agenterrors.RulesForAgent(cfg).Validate(input.Parameters); err != nil {
		return nil, err
	}

	exec := execution.New(agentID, input)
	if err := o.container.Add(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}
	o.logger.LogExecutionStart(agentID, exec.ID)

	final, err := o.run(ctx, cfg, exec)
	if err != nil {
		failed := o.recordFailure(exec, err)
		o.metrics.ObserveExecution(agentID, string(execution.StatusFailed), string(agenterrors.CodeOf(err)), time.Since(exec.CreatedAt))
		o.logger.LogExecutionError(agentID, exec.ID, err)
		return failed, err
	}

	if final.Status == execution.StatusCompleted {
		o.metrics.ObserveExecution(agentID, string(execution.StatusCompleted), "", time.Since(exec.CreatedAt))
		o.logger.LogExecutionComplete(agentID, exec.ID, time.Since(exec.CreatedAt))
	} else {
		// Long-running job with no way to await it; the caller follows up
		o.logger.Info("execution left processing",
			logging.F("agent_id", agentID),
			logging.F("execution_id", exec.ID),
		)
	}
	return final, nil
}

// run drives the steps that happen after the execution record exists:
// payload construction, trigger, response interpretation, and optional
// polling
func (o *Orchestrator) run(ctx context.Context, cfg agent.Config, exec *execution.Execution) (*execution.Execution, error) {
	payload := BuildPayload(cfg, exec.Input)

	resp, err := o.trigger(ctx, cfg, payload)
	if err != nil {
		return nil, err
	}

	outcome := interpretResponse(resp)

	// The engine accepted the request; record processing plus whatever
	// job coordinates the answer carried
	processing := execution.StatusProcessing
	patch := execution.Patch{Status: &processing}
	if outcome.remoteID != "" {
		patch.RemoteID = &outcome.remoteID
	}
	if outcome.pollURL != "" {
		patch.PollURL = &outcome.pollURL
	}
	current, err := o.container.Update(ctx, exec.ID, patch)
	if err != nil {
		return nil, err
	}

	switch outcome.kind {
	case outcomeImmediate:
		output, err := o.parseOutput(cfg.OutputSchema.Type, outcome, resp.ContentType)
		if err != nil {
			return nil, err
		}
		return o.complete(ctx, exec.ID, output)

	case outcomeFailed:
		return nil, agenterrors.New(agenterrors.CodeWebhook, outcome.message)

	default:
		if outcome.pollURL == "" || cfg.Settings.MaxExecutionTime <= 0 {
			// No status source or no wait budget: the outcome is
			// unknowable from here. Never fabricate a completed result.
			return current, nil
		}
		return o.poll(ctx, cfg, current, outcome.pollURL)
	}
}

// trigger invokes the agent's webhook, wrapping the call in the retry
// policy when the agent opts in via settings.retryAttempts
func (o *Orchestrator) trigger(ctx context.Context, cfg agent.Config, payload map[string]interface{}) (*transport.EngineResponse, error) {
	if cfg.Settings.RetryAttempts <= 0 {
		return o.client.Trigger(ctx, cfg.WebhookURL, payload)
	}

	policy := agenterrors.RetryPolicy{
		MaxAttempts: cfg.Settings.RetryAttempts,
		Delay:       o.retryDelay,
		OnRetry: func(attempt int, err error) {
			o.metrics.IncRetry(cfg.ID)
			o.logger.Warn("retrying trigger",
				logging.F("agent_id", cfg.ID),
				logging.F("attempt", attempt),
				logging.F("error", err.Error()),
			)
		},
	}

	var resp *transport.EngineResponse
	err := agenterrors.RetryWithBackoff(ctx, func() error {
		var triggerErr error
		resp, triggerErr = o.client.Trigger(ctx, cfg.WebhookURL, payload)
		return triggerErr
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// complete moves the execution to completed with its output
func (o *Orchestrator) complete(ctx context.Context, id string, output *execution.Output) (*execution.Execution, error) {
	completed := execution.StatusCompleted
	return o.container.Update(ctx, id, execution.Patch{Status: &completed, Output: output})
}

// recordFailure writes the terminal failure onto the execution. The write
// uses a fresh context so a cancelled request still leaves a failure
// record behind.
func (o *Orchestrator) recordFailure(exec *execution.Execution, cause error) *execution.Execution {
	norm := agenterrors.Normalize(cause)
	failed := execution.StatusFailed
	record, err := o.container.Update(context.Background(), exec.ID, execution.Patch{
		Status: &failed,
		Error: &execution.Error{
			Code:    ExecutionFailedCode,
			Message: norm.Message,
			Details: failureDetails(norm),
		},
	})
	if err != nil {
		// History may have been cleared mid-flight; the caller still
		// receives the cause
		o.logger.Warn("could not record execution failure",
			logging.F("execution_id", exec.ID),
			logging.F("error", err.Error()),
		)
		return exec
	}
	return record
}

// failureDetails flattens a normalized error into the diagnostic payload
// stored on the execution record
func failureDetails(norm *agenterrors.Error) map[string]interface{} {
	details := map[string]interface{}{
		"code":    string(norm.Code),
		"message": norm.Message,
	}
	if norm.HTTPStatus != 0 {
		details["httpStatus"] = norm.HTTPStatus
	}
	if norm.Err != nil {
		details["cause"] = norm.Err.Error()
	}
	if norm.Details != nil {
		details["data"] = norm.Details
	}
	return details
}
