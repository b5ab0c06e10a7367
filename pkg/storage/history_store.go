package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/metrics"
)

// History limits. A full history keeps DefaultHistoryLimit entries per
// agent; quota pressure degrades a write to the reduced and then the
// minimal count before giving up.
const (
	DefaultHistoryLimit = 50
	reducedHistoryLimit = 10
	minimalHistoryLimit = 5
)

// DefaultNamespace prefixes every key when none is configured
const DefaultNamespace = "agentrunner"

// Degradation levels reported to metrics
const (
	DegradationReduced = "reduced"
	DegradationGlobal  = "global"
)

// HistoryStoreOptions configures a HistoryStore
type HistoryStoreOptions struct {
	// Namespace prefixes every key; defaults to agentrunner
	Namespace string

	// Logger records degradations and read-path tolerance
	Logger logging.Logger

	// Metrics counts quota degradations
	Metrics metrics.Recorder
}

// HistoryStore persists execution history and preferences through a
// Provider, absorbing backend quota pressure by shrinking what it keeps
type HistoryStore struct {
	provider  Provider
	namespace string
	logger    logging.Logger
	metrics   metrics.Recorder
}

// NewHistoryStore creates a history store over a provider
func NewHistoryStore(provider Provider, opts HistoryStoreOptions) *HistoryStore {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &HistoryStore{
		provider:  provider,
		namespace: opts.Namespace,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// executionsKey returns the key holding one agent's execution history
func (s *HistoryStore) executionsKey(agentID string) string {
	return s.namespace + ":executions:" + agentID
}

// executionsPrefix returns the prefix shared by all execution keys
func (s *HistoryStore) executionsPrefix() string {
	return s.namespace + ":executions:"
}

// preferencesKey returns the key holding user preferences
func (s *HistoryStore) preferencesKey() string {
	return s.namespace + ":preferences"
}

// SaveExecutions stores an agent's execution list. On quota-exceeded
// failures the write degrades: first to the 10 most recent entries, then
// after a global free-up to the 5 most recent. A final failure returns
// the quota error to the caller.
func (s *HistoryStore) SaveExecutions(ctx context.Context, agentID string, execs []*execution.Execution) error {
	key := s.executionsKey(agentID)

	err := s.putJSON(ctx, key, execs)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	// Quota pressure: keep only the most recent entries
	s.logger.Warn("storage quota exceeded, reducing history",
		logging.F("agent_id", agentID),
		logging.F("kept", reducedHistoryLimit),
	)
	s.metrics.IncStorageDegradation(DegradationReduced)

	err = s.putJSON(ctx, key, truncateExecutions(execs, reducedHistoryLimit))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	// Still failing: shrink every agent's stored history, then keep
	// only a minimal recent window
	s.logger.Warn("storage quota still exceeded, freeing space globally",
		logging.F("agent_id", agentID),
		logging.F("kept", minimalHistoryLimit),
	)
	s.metrics.IncStorageDegradation(DegradationGlobal)
	s.freeUp(ctx)

	return s.putJSON(ctx, key, truncateExecutions(execs, minimalHistoryLimit))
}

// LoadExecutions returns an agent's stored history. A missing key is an
// empty history; a corrupt record is treated as absent and logged, never
// surfaced as an error.
func (s *HistoryStore) LoadExecutions(ctx context.Context, agentID string) ([]*execution.Execution, error) {
	data, err := s.provider.Get(ctx, s.executionsKey(agentID))
	if errors.Is(err, ErrNotFound) {
		return []*execution.Execution{}, nil
	}
	if err != nil {
		return nil, err
	}

	var execs []*execution.Execution
	if err := json.Unmarshal(data, &execs); err != nil {
		s.logger.Warn("discarding malformed execution history",
			logging.F("agent_id", agentID),
			logging.F("error", err.Error()),
		)
		return []*execution.Execution{}, nil
	}
	return execs, nil
}

// DeleteExecutions removes an agent's stored history
func (s *HistoryStore) DeleteExecutions(ctx context.Context, agentID string) error {
	return s.provider.Delete(ctx, s.executionsKey(agentID))
}

// SavePreferences stores the preferences object. On quota-exceeded it
// frees history space globally and retries once.
func (s *HistoryStore) SavePreferences(ctx context.Context, prefs map[string]interface{}) error {
	key := s.preferencesKey()

	err := s.putJSON(ctx, key, prefs)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	s.logger.Warn("storage quota exceeded saving preferences, freeing space globally")
	s.metrics.IncStorageDegradation(DegradationGlobal)
	s.freeUp(ctx)

	return s.putJSON(ctx, key, prefs)
}

// LoadPreferences returns the stored preferences, tolerating missing and
// corrupt records the same way LoadExecutions does
func (s *HistoryStore) LoadPreferences(ctx context.Context) (map[string]interface{}, error) {
	data, err := s.provider.Get(ctx, s.preferencesKey())
	if errors.Is(err, ErrNotFound) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}

	var prefs map[string]interface{}
	if err := json.Unmarshal(data, &prefs); err != nil {
		s.logger.Warn("discarding malformed preferences", logging.F("error", err.Error()))
		return map[string]interface{}{}, nil
	}
	return prefs, nil
}

// Export returns every namespaced key as one document with structured
// JSON values
func (s *HistoryStore) Export(ctx context.Context) (map[string]interface{}, error) {
	keys, err := s.provider.Keys(ctx, s.namespace+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for export: %w", err)
	}

	doc := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		data, err := s.provider.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to export key %s: %w", key, err)
		}

		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			// Keep unparseable values as raw strings
			doc[key] = string(data)
			continue
		}
		doc[key] = value
	}
	return doc, nil
}

// Import writes back every namespaced key from a document produced by
// Export, accepting pre-serialized strings or structured values. Keys
// outside the namespace are skipped and counted.
func (s *HistoryStore) Import(ctx context.Context, doc map[string]interface{}) (imported int, skipped int, err error) {
	for key, value := range doc {
		if !strings.HasPrefix(key, s.namespace+":") {
			skipped++
			continue
		}

		var data []byte
		if str, ok := value.(string); ok && json.Valid([]byte(str)) {
			data = []byte(str)
		} else {
			data, err = json.Marshal(value)
			if err != nil {
				return imported, skipped, fmt.Errorf("failed to encode value for key %s: %w", key, err)
			}
		}

		if err = s.provider.Put(ctx, key, data); err != nil {
			return imported, skipped, fmt.Errorf("failed to import key %s: %w", key, err)
		}
		imported++
	}
	return imported, skipped, nil
}

// putJSON marshals and stores one value
func (s *HistoryStore) putJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}
	return s.provider.Put(ctx, key, data)
}

// freeUp truncates every agent's stored history to the reduced limit.
// Failures here are logged and swallowed; the caller's own retry decides
// whether the free-up was enough.
func (s *HistoryStore) freeUp(ctx context.Context) {
	keys, err := s.provider.Keys(ctx, s.executionsPrefix())
	if err != nil {
		s.logger.Warn("free-up could not list history keys", logging.F("error", err.Error()))
		return
	}

	for _, key := range keys {
		data, err := s.provider.Get(ctx, key)
		if err != nil {
			continue
		}

		// Entries stay opaque here; only the list length matters
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			continue
		}
		if len(entries) <= reducedHistoryLimit {
			continue
		}

		truncated, err := json.Marshal(entries[:reducedHistoryLimit])
		if err != nil {
			continue
		}
		if err := s.provider.Put(ctx, key, truncated); err != nil {
			s.logger.Warn("free-up rewrite failed",
				logging.F("key", key),
				logging.F("error", err.Error()),
			)
		}
	}
}

// truncateExecutions keeps at most limit entries. Lists are ordered
// newest first, so a prefix keeps the most recent entries.
func truncateExecutions(execs []*execution.Execution, limit int) []*execution.Execution {
	if len(execs) <= limit {
		return execs
	}
	return execs[:limit]
}
