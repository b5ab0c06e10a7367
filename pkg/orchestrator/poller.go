package orchestrator

import (
	"context"
	"time"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/logging"
)

// maxConsecutivePollFailures bounds tolerated status-fetch errors before
// the loop gives up
const maxConsecutivePollFailures = 3

// poll waits out a long-running job, re-querying the status source every
// interval until it reports a terminal outcome or the agent's
// maxExecutionTime passes. The loop registers its cancel function with
// the container so clearing the agent's history aborts it.
func (o *Orchestrator) poll(ctx context.Context, cfg agent.Config, exec *execution.Execution, pollURL string) (*execution.Execution, error) {
	interval := o.pollInterval
	if cfg.Settings.PollingInterval > 0 {
		interval = time.Duration(cfg.Settings.PollingInterval) * time.Millisecond
	}
	maxWait := time.Duration(cfg.Settings.MaxExecutionTime) * time.Millisecond

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.container.TrackPoll(exec.AgentID, exec.ID, cancel)
	defer o.container.UntrackPoll(exec.AgentID, exec.ID)

	o.logger.Debug("polling job status",
		logging.F("agent_id", exec.AgentID),
		logging.F("execution_id", exec.ID),
		logging.F("interval_ms", interval.Milliseconds()),
		logging.F("max_wait_ms", maxWait.Milliseconds()),
	)

	start := time.Now()
	failures := 0
	for {
		select {
		case <-pollCtx.Done():
			return nil, pollCtx.Err()
		case <-time.After(interval):
		}
		if time.Since(start) > maxWait {
			return nil, agenterrors.Newf(agenterrors.CodeExecutionTimeout,
				"agent %q did not finish within %dms", cfg.ID, cfg.Settings.MaxExecutionTime)
		}

		resp, err := o.client.FetchStatus(pollCtx, pollURL)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, pollCtx.Err()
			}
			failures++
			o.logger.Warn("status fetch failed",
				logging.F("execution_id", exec.ID),
				logging.F("consecutive_failures", failures),
				logging.F("error", err.Error()),
			)
			if failures >= maxConsecutivePollFailures {
				return nil, err
			}
			continue
		}
		failures = 0

		outcome := interpretResponse(resp)
		switch outcome.kind {
		case outcomeImmediate:
			output, parseErr := o.parseOutput(cfg.OutputSchema.Type, outcome, resp.ContentType)
			if parseErr != nil {
				return nil, parseErr
			}
			return o.complete(ctx, exec.ID, output)

		case outcomeFailed:
			return nil, agenterrors.New(agenterrors.CodeWebhook, outcome.message)

		default:
			// Still processing; follow a relocated poll URL if the
			// engine moved the job
			if outcome.pollURL != "" {
				pollURL = outcome.pollURL
			}
		}
	}
}
