// Package graph persists the decision trail of each batch into a knowledge
// graph and mines it for recurring inferences. Every path degrades
// gracefully: a missing or failing graph store never fails the owning
// pipeline run.
package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"promo-server/internal/blackboard"
	"promo-server/internal/config"
)

// fallbackPatterns is returned whenever the graph store cannot answer a
// pattern query.
var fallbackPatterns = []string{
	"stability-focused narratives outperform urgency hooks",
	"single-claim scenes audit higher than multi-claim scenes",
	"avatar scenes with explicit grounding reduce review rates",
}

// Store is the capability boundary to the graph database. Merge semantics
// are required: re-running with the same batch id and content must not
// create duplicates.
type Store interface {
	MergeBatchRelationships(ctx context.Context, batchID string, inferences, decisions []string) error
	QueryRecurringPatterns(ctx context.Context, minBatchCount int) ([]string, error)
	Close(ctx context.Context) error
}

// Persister wraps a Store and enforces the never-fail contract.
type Persister struct {
	store  Store
	logger *zap.Logger
}

// NewPersister selects the live driver when the graph is configured and the
// noop client otherwise. Selection happens once, at construction.
func NewPersister(cfg *config.Config, logger *zap.Logger) *Persister {
	logger = logger.Named("KnowledgeGraph")
	if !cfg.GraphConfigured() {
		logger.Info("Graph store not configured, using noop client")
		return &Persister{store: noopStore{logger: logger}, logger: logger}
	}

	store, err := newNeo4jStore(cfg, logger)
	if err != nil {
		// Driver construction failure also degrades to noop.
		logger.Warn("Failed to initialize graph driver, using noop client", zap.Error(err))
		return &Persister{store: noopStore{logger: logger}, logger: logger}
	}
	logger.Info("Live graph client initialized", zap.String("uri", cfg.Neo4jURI))
	return &Persister{store: store, logger: logger}
}

// NewPersisterWithStore injects a store directly. Used by tests.
func NewPersisterWithStore(store Store, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, logger: logger.Named("KnowledgeGraph")}
}

// PersistBatch merges the blackboard's inferences and decisions under the
// batch node. Errors are logged and swallowed.
func (p *Persister) PersistBatch(ctx context.Context, batchID string, bb *blackboard.Blackboard) {
	inferences := bb.Inferences()
	decisions := bb.Decisions()
	if err := p.store.MergeBatchRelationships(ctx, batchID, inferences, decisions); err != nil {
		p.logger.Warn("Graph persistence failed, continuing without it",
			zap.String("batch_id", batchID),
			zap.Int("inferences", len(inferences)),
			zap.Int("decisions", len(decisions)),
			zap.Error(err))
		return
	}
	p.logger.Info("Batch relationships merged",
		zap.String("batch_id", batchID),
		zap.Int("inferences", len(inferences)),
		zap.Int("decisions", len(decisions)))
}

// DiscoverWinningPatterns returns inferences recurring across at least
// minBatchCount batches, ranked by spread. On any failure a fixed fallback
// list is returned instead of an error.
func (p *Persister) DiscoverWinningPatterns(ctx context.Context, minBatchCount int) []string {
	if minBatchCount < 2 {
		minBatchCount = 2
	}
	patterns, err := p.store.QueryRecurringPatterns(ctx, minBatchCount)
	if err != nil {
		p.logger.Warn("Pattern query failed, returning fallback list", zap.Error(err))
		return append([]string(nil), fallbackPatterns...)
	}
	if len(patterns) == 0 {
		return append([]string(nil), fallbackPatterns...)
	}
	return patterns
}

// Close releases the underlying driver.
func (p *Persister) Close(ctx context.Context) {
	if err := p.store.Close(ctx); err != nil {
		p.logger.Warn("Failed to close graph store", zap.Error(err))
	}
}

// noopStore logs what would have been persisted and answers queries with an
// empty result.
type noopStore struct {
	logger *zap.Logger
}

func (s noopStore) MergeBatchRelationships(_ context.Context, batchID string, inferences, decisions []string) error {
	s.logger.Debug("Noop graph merge",
		zap.String("batch_id", batchID),
		zap.Strings("inferences", inferences),
		zap.Strings("decisions", decisions))
	return nil
}

func (s noopStore) QueryRecurringPatterns(context.Context, int) ([]string, error) {
	return nil, fmt.Errorf("graph store not configured")
}

func (s noopStore) Close(context.Context) error { return nil }
