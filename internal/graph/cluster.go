package graph

import (
	"context"
	"strconv"
)

// FetchUnclustered returns up to limit addresses with no cluster_id. Order
// is store-determined and not stable across calls.
func (c *Client) FetchUnclustered(ctx context.Context, limit int) ([]string, error) {
	query := `
	MATCH (a:Address)
	WHERE a.cluster_id IS NULL
	RETURN a.address AS address
	LIMIT $limit
	`
	records, err := c.read(ctx, "fetch unclustered", query, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, record := range records {
		if addr := recString(record, "address"); addr != "" {
			out = append(out, addr)
		}
	}
	return out, nil
}

// ComponentMembers returns the distinct addresses reachable from seed via
// undirected SENT adjacency within depth hops. The seed itself is included
// (the *0.. lower bound). Depth-bounded: components wider than depth are
// split across cluster ids, a documented approximation.
func (c *Client) ComponentMembers(ctx context.Context, seed string, depth int) ([]string, error) {
	query := `
	MATCH (start:Address {address: $seed})
	MATCH (start)-[:SENT*0..` + strconv.Itoa(depth) + `]-(member:Address)
	RETURN DISTINCT member.address AS address
	`
	records, err := c.read(ctx, "component members", query, map[string]any{"seed": seed})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, record := range records {
		if addr := recString(record, "address"); addr != "" {
			out = append(out, addr)
		}
	}
	return out, nil
}

// AssignClusterID stamps clusterID onto every member whose cluster_id is
// still null. coalesce makes the write set-if-absent: an id, once assigned,
// is never overwritten.
func (c *Client) AssignClusterID(ctx context.Context, members []string, clusterID string) error {
	if len(members) == 0 {
		return nil
	}
	query := `
	MATCH (a:Address)
	WHERE a.address IN $members
	SET a.cluster_id = coalesce(a.cluster_id, $clusterId)
	`
	return c.write(ctx, "assign cluster id", query, map[string]any{
		"members":   members,
		"clusterId": clusterID,
	})
}
