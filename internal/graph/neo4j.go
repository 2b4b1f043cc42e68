package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"promo-server/internal/config"
)

const mergeBatchCypher = `
MERGE (b:Batch {id: $batchID})
WITH b
UNWIND $inferences AS inf
MERGE (i:Inference {text: inf})
MERGE (b)-[:INFERRED]->(i)
WITH DISTINCT b
UNWIND $decisions AS dec
MERGE (d:Decision {text: dec})
MERGE (b)-[:DECIDED]->(d)
`

const recurringPatternsCypher = `
MATCH (b:Batch)-[:INFERRED]->(i:Inference)
WITH i, count(DISTINCT b) AS batches
WHERE batches >= $minBatches
RETURN i.text AS pattern
ORDER BY batches DESC, pattern ASC
LIMIT 25
`

// neo4jStore is the live Store backed by the bolt driver.
type neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ Store = (*neo4jStore)(nil)

func newNeo4jStore(cfg *config.Config, logger *zap.Logger) (*neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}
	return &neo4jStore{driver: driver, database: "neo4j", logger: logger}, nil
}

func (s *neo4jStore) MergeBatchRelationships(ctx context.Context, batchID string, inferences, decisions []string) error {
	if len(inferences) == 0 && len(decisions) == 0 {
		return nil
	}
	params := map[string]any{
		"batchID":    batchID,
		"inferences": inferences,
		"decisions":  decisions,
	}
	_, err := neo4j.ExecuteQuery(ctx, s.driver, mergeBatchCypher, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return fmt.Errorf("failed to merge batch relationships: %w", err)
	}
	return nil
}

func (s *neo4jStore) QueryRecurringPatterns(ctx context.Context, minBatchCount int) ([]string, error) {
	params := map[string]any{"minBatches": minBatchCount}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, recurringPatternsCypher, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring patterns: %w", err)
	}

	patterns := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		pattern, ok := record.Get("pattern")
		if !ok {
			continue
		}
		if text, ok := pattern.(string); ok && text != "" {
			patterns = append(patterns, text)
		}
	}
	return patterns, nil
}

func (s *neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
