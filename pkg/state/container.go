// Package state holds the in-memory execution history shared by the
// orchestrator and the API layer, and mirrors every mutation to the
// history store. The container is the sole writer of execution data to
// the persistence layer.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/storage"
)

// Common errors
var (
	// ErrExecutionNotFound is returned when an execution id is unknown
	ErrExecutionNotFound = errors.New("execution not found")
)

// HistoryStore is the persistence surface the container mirrors to
type HistoryStore interface {
	// SaveExecutions stores an agent's execution list
	SaveExecutions(ctx context.Context, agentID string, execs []*execution.Execution) error

	// LoadExecutions returns an agent's stored history
	LoadExecutions(ctx context.Context, agentID string) ([]*execution.Execution, error)

	// DeleteExecutions removes an agent's stored history
	DeleteExecutions(ctx context.Context, agentID string) error
}

// ContainerOptions configures a Container
type ContainerOptions struct {
	// HistoryLimit caps each agent's list; defaults to the store's limit
	HistoryLimit int

	// Logger records persistence problems the container absorbs
	Logger logging.Logger
}

// Container keeps each agent's executions in memory, newest first and
// capped, with every mutation mirrored to the history store. Mutations
// run to completion under the lock, including the mirror write, so the
// stored list is always a complete snapshot of one mutation.
type Container struct {
	mu        sync.Mutex
	store     HistoryStore
	logger    logging.Logger
	limit     int
	histories map[string][]*execution.Execution
	hydrated  map[string]bool

	// The current pointer tracks the most recently added execution
	currentAgent string
	currentID    string

	// cancels aborts in-flight poll loops when their agent's history
	// is cleared, keyed by agent id then execution id
	cancels map[string]map[string]context.CancelFunc
}

// NewContainer creates an empty container mirroring to store
func NewContainer(store HistoryStore, opts ContainerOptions) *Container {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = storage.DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Container{
		store:     store,
		logger:    opts.Logger,
		limit:     opts.HistoryLimit,
		histories: make(map[string][]*execution.Execution),
		hydrated:  make(map[string]bool),
		cancels:   make(map[string]map[string]context.CancelFunc),
	}
}

// Add records a new execution: it is prepended to its agent's list,
// the list is truncated to the cap, the execution becomes current, and
// the truncated list is persisted. The agent's stored history is
// hydrated first so a fresh process never overwrites it.
func (c *Container) Add(ctx context.Context, exec *execution.Execution) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hydrateLocked(ctx, exec.AgentID)

	list := append([]*execution.Execution{exec.Clone()}, c.histories[exec.AgentID]...)
	if len(list) > c.limit {
		list = list[:c.limit]
	}
	c.histories[exec.AgentID] = list
	c.currentAgent = exec.AgentID
	c.currentID = exec.ID

	return c.store.SaveExecutions(ctx, exec.AgentID, list)
}

// Update locates an execution by id across all agents, applies the
// patch through the record's transition methods, replaces it in its
// list preserving position, and persists that agent's list. Applying
// the same patch twice yields the same record as applying it once.
func (c *Container) Update(ctx context.Context, id string, patch execution.Patch) (*execution.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agentID, idx := c.locateLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	updated := c.histories[agentID][idx].Clone()
	if err := updated.Apply(patch); err != nil {
		return nil, err
	}
	c.histories[agentID][idx] = updated

	if err := c.store.SaveExecutions(ctx, agentID, c.histories[agentID]); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// LoadHistory hydrates an agent's history from the store. It runs at
// most once per agent per process lifetime; later calls are no-ops, so
// externally written changes after the first load are not picked up.
func (c *Container) LoadHistory(ctx context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hydrated[agentID] {
		return nil
	}

	execs, err := c.store.LoadExecutions(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to load history for agent %s: %w", agentID, err)
	}
	c.histories[agentID] = execs
	c.hydrated[agentID] = true
	return nil
}

// ClearHistory drops an agent's in-memory list and its stored record.
// In-flight poll loops for the agent are cancelled, and the current
// pointer is cleared when the agent owned it.
func (c *Container) ClearHistory(ctx context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.histories, agentID)
	c.hydrated[agentID] = true
	if c.currentAgent == agentID {
		c.currentAgent = ""
		c.currentID = ""
	}

	for _, cancel := range c.cancels[agentID] {
		cancel()
	}
	delete(c.cancels, agentID)

	return c.store.DeleteExecutions(ctx, agentID)
}

// Current returns a copy of the most recently added execution, or nil
// when there is none or its agent's history was cleared
func (c *Container) Current() *execution.Execution {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentID == "" {
		return nil
	}
	for _, exec := range c.histories[c.currentAgent] {
		if exec.ID == c.currentID {
			return exec.Clone()
		}
	}
	return nil
}

// IsExecuting reports whether the current execution is still running
func (c *Container) IsExecuting() bool {
	current := c.Current()
	return current != nil && !current.Status.Terminal()
}

// History returns copies of an agent's executions, newest first
func (c *Container) History(agentID string) []*execution.Execution {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.histories[agentID]
	out := make([]*execution.Execution, 0, len(list))
	for _, exec := range list {
		out = append(out, exec.Clone())
	}
	return out
}

// Find returns a copy of the execution with the given id, searching
// across all agents
func (c *Container) Find(id string) (*execution.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agentID, idx := c.locateLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return c.histories[agentID][idx].Clone(), nil
}

// TrackPoll registers the cancel function of an execution's poll loop
// so ClearHistory can abort it
func (c *Container) TrackPoll(agentID string, executionID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancels[agentID] == nil {
		c.cancels[agentID] = make(map[string]context.CancelFunc)
	}
	c.cancels[agentID][executionID] = cancel
}

// UntrackPoll removes a poll registration once its loop has finished
func (c *Container) UntrackPoll(agentID string, executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cancels[agentID], executionID)
	if len(c.cancels[agentID]) == 0 {
		delete(c.cancels, agentID)
	}
}

// hydrateLocked loads an agent's stored history if it hasn't been
// loaded yet. Load failures are logged and leave the agent hydrated
// with what is in memory; the caller's own write decides what persists.
func (c *Container) hydrateLocked(ctx context.Context, agentID string) {
	if c.hydrated[agentID] {
		return
	}

	execs, err := c.store.LoadExecutions(ctx, agentID)
	if err != nil {
		c.logger.Warn("could not hydrate history before write",
			logging.F("agent_id", agentID),
			logging.F("error", err.Error()),
		)
	} else {
		c.histories[agentID] = execs
	}
	c.hydrated[agentID] = true
}

// locateLocked finds an execution by id, returning its agent and list
// position, or -1 when unknown
func (c *Container) locateLocked(id string) (string, int) {
	for agentID, list := range c.histories {
		for idx, exec := range list {
			if exec.ID == id {
				return agentID, idx
			}
		}
	}
	return "", -1
}
