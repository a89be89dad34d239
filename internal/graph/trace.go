package graph

import (
	"context"
	"strconv"
)

// Node label and relationship type the trace and clustering engines operate
// on. Anything else returned by the store is skipped during merging.
const (
	LabelAddress = "Address"
	RelSent      = "SENT"
)

// ShortestPath runs a bounded shortest-path search along directed SENT
// relationships. Zero results yield an empty slice, not an error; the store's
// shortest-path semantics return at most one path.
func (c *Client) ShortestPath(ctx context.Context, source, target string, maxHops int) ([]Path, error) {
	// Variable-length bounds cannot be parameterized in Cypher; the clamped
	// hop count is spliced in as a literal.
	query := `
	MATCH (source:Address {address: $source})
	MATCH (target:Address {address: $target})
	MATCH path = shortestPath((source)-[:SENT*1..` + strconv.Itoa(maxHops) + `]->(target))
	RETURN path
	`
	records, err := c.read(ctx, "shortest path", query, map[string]any{
		"source": source,
		"target": target,
	})
	if err != nil {
		return nil, err
	}
	return collectPaths(records), nil
}

// NeighborhoodPaths explores all directed paths of length 1..maxHops from
// source, capped at limit paths store-side. This is a sample of the
// neighborhood, not a complete traversal.
func (c *Client) NeighborhoodPaths(ctx context.Context, source string, maxHops, limit int) ([]Path, error) {
	query := `
	MATCH (source:Address {address: $source})
	MATCH path = (source)-[:SENT*1..` + strconv.Itoa(maxHops) + `]->(:Address)
	RETURN path
	LIMIT $limit
	`
	records, err := c.read(ctx, "neighborhood paths", query, map[string]any{
		"source": source,
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}
	return collectPaths(records), nil
}
