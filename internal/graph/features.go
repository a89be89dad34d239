package graph

import (
	"context"
	"time"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// FeatureRow is the raw per-address aggregate the scoring pipeline derives
// its feature vector from. Averages are store-side over toFloat(value_wei);
// a missing side leaves the zero value.
type FeatureRow struct {
	Address      string
	ClusterID    *string
	IsSanctioned bool
	InCount      int64
	OutCount     int64
	AvgInValue   float64
	AvgOutValue  float64
	InMinTS      int64
	InMaxTS      int64
	OutMinTS     int64
	OutMaxTS     int64
	InNeighbors  []string
	OutNeighbors []string
}

const featureQuery = `
MATCH (a:Address)
OPTIONAL MATCH (a)-[out:SENT]->(out_neighbor:Address)
WITH a,
     count(out) AS out_count,
     avg(toFloat(out.value_wei)) AS avg_out_value,
     min(out.timestamp) AS out_min_ts,
     max(out.timestamp) AS out_max_ts,
     collect(DISTINCT out_neighbor.address) AS out_neighbors
OPTIONAL MATCH (in_neighbor:Address)-[inc:SENT]->(a)
WITH a, out_count, avg_out_value, out_min_ts, out_max_ts, out_neighbors,
     count(inc) AS in_count,
     avg(toFloat(inc.value_wei)) AS avg_in_value,
     min(inc.timestamp) AS in_min_ts,
     max(inc.timestamp) AS in_max_ts,
     collect(DISTINCT in_neighbor.address) AS in_neighbors
RETURN a.address AS address,
       a.cluster_id AS cluster_id,
       coalesce(a.is_sanctioned, false) AS is_sanctioned,
       in_count, out_count,
       avg_in_value, avg_out_value,
       in_min_ts, in_max_ts, out_min_ts, out_max_ts,
       in_neighbors, out_neighbors
`

// FeatureRows aggregates transaction statistics for every address.
func (c *Client) FeatureRows(ctx context.Context) ([]FeatureRow, error) {
	records, err := c.read(ctx, "feature rows", featureQuery, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]FeatureRow, 0, len(records))
	for _, record := range records {
		addr := recString(record, "address")
		if addr == "" {
			continue
		}
		rows = append(rows, FeatureRow{
			Address:      addr,
			ClusterID:    recStringPtr(record, "cluster_id"),
			IsSanctioned: recBool(record, "is_sanctioned"),
			InCount:      recInt64(record, "in_count"),
			OutCount:     recInt64(record, "out_count"),
			AvgInValue:   recFloat(record, "avg_in_value"),
			AvgOutValue:  recFloat(record, "avg_out_value"),
			InMinTS:      recInt64(record, "in_min_ts"),
			InMaxTS:      recInt64(record, "in_max_ts"),
			OutMinTS:     recInt64(record, "out_min_ts"),
			OutMaxTS:     recInt64(record, "out_max_ts"),
			InNeighbors:  recStrings(record, "in_neighbors"),
			OutNeighbors: recStrings(record, "out_neighbors"),
		})
	}
	return rows, nil
}

// WriteScores persists one batch of scoring output. The caller slices the
// full result set into batches; a failure aborts the remaining batches while
// earlier ones stay committed.
func (c *Client) WriteScores(ctx context.Context, batch []models.AddressScore, analyzedAt time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(batch))
	for _, s := range batch {
		rows = append(rows, map[string]any{
			"address":               s.Address,
			"risk_score":            s.RiskScore,
			"is_anomaly":            s.IsAnomaly,
			"tx_rate":               s.TxRate,
			"unique_counterparties": s.UniqueCounterparties,
		})
	}
	query := `
	UNWIND $batch AS row
	MATCH (a:Address {address: row.address})
	SET a.risk_score = row.risk_score,
	    a.is_anomaly = row.is_anomaly,
	    a.tx_rate = row.tx_rate,
	    a.unique_counterparties = row.unique_counterparties,
	    a.analyzed_at = $analyzedAt
	`
	return c.write(ctx, "write scores", query, map[string]any{
		"batch":      rows,
		"analyzedAt": analyzedAt.UTC().Format(time.RFC3339),
	})
}

// Alerts returns scored addresses in descending risk order. Addresses whose
// severity was never evaluated default to LOW.
func (c *Client) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := `
	MATCH (a:Address)
	WHERE a.risk_score IS NOT NULL
	RETURN a.address AS address,
	       a.cluster_id AS cluster_id,
	       a.risk_score AS risk_score,
	       coalesce(a.is_anomaly, false) AS is_anomaly,
	       coalesce(a.is_sanctioned, false) AS is_sanctioned,
	       coalesce(a.alert_severity, 'LOW') AS severity
	ORDER BY a.risk_score DESC
	LIMIT $limit
	`
	records, err := c.read(ctx, "alerts", query, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	alerts := make([]models.Alert, 0, len(records))
	for _, record := range records {
		addr := recString(record, "address")
		if addr == "" {
			continue
		}
		alerts = append(alerts, models.Alert{
			Address:      addr,
			ClusterID:    recStringPtr(record, "cluster_id"),
			RiskScore:    recFloat(record, "risk_score"),
			IsAnomaly:    recBool(record, "is_anomaly"),
			IsSanctioned: recBool(record, "is_sanctioned"),
			Severity:     models.Severity(recString(record, "severity")),
		})
	}
	return alerts, nil
}
