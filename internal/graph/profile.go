package graph

import (
	"context"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// AddressProfile returns metadata and degree statistics for one address,
// or ErrNotFound when the address is absent from the store.
func (c *Client) AddressProfile(ctx context.Context, address string) (*models.AddressProfile, error) {
	query := `
	MATCH (a:Address {address: $address})
	OPTIONAL MATCH (a)-[out:SENT]->(out_neighbor:Address)
	WITH a, count(out) AS out_count, collect(DISTINCT out_neighbor.address) AS out_neighbors
	OPTIONAL MATCH (in_neighbor:Address)-[inc:SENT]->(a)
	WITH a, out_count, out_neighbors, count(inc) AS in_count,
	     collect(DISTINCT in_neighbor.address) AS in_neighbors
	RETURN a.address AS address,
	       a.cluster_id AS cluster_id,
	       a.risk_score AS risk_score,
	       coalesce(a.is_anomaly, false) AS is_anomaly,
	       coalesce(a.is_sanctioned, false) AS is_sanctioned,
	       in_count, out_count, in_neighbors, out_neighbors
	`
	records, err := c.read(ctx, "address profile", query, map[string]any{"address": address})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	record := records[0]

	// Unique counterparties are the union of both neighbor sets.
	counterparties := make(map[string]bool)
	for _, n := range recStrings(record, "in_neighbors") {
		counterparties[n] = true
	}
	for _, n := range recStrings(record, "out_neighbors") {
		counterparties[n] = true
	}

	return &models.AddressProfile{
		Address:              recString(record, "address"),
		ClusterID:            recStringPtr(record, "cluster_id"),
		RiskScore:            recFloatPtr(record, "risk_score"),
		IsAnomaly:            recBool(record, "is_anomaly"),
		IsSanctioned:         recBool(record, "is_sanctioned"),
		InCount:              recInt64(record, "in_count"),
		OutCount:             recInt64(record, "out_count"),
		UniqueCounterparties: len(counterparties),
	}, nil
}
