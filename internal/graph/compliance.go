package graph

import (
	"context"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// MarkSanctioned flags the batch as sanctioned with HIGH severity and
// returns how many addresses actually matched. Addresses absent from the
// store are not created. is_sanctioned only ever moves false -> true.
func (c *Client) MarkSanctioned(ctx context.Context, batch []string) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	query := `
	UNWIND $batch AS address
	MATCH (a:Address {address: address})
	SET a.is_sanctioned = true,
	    a.alert_severity = 'HIGH'
	RETURN count(a) AS updated
	`
	records, err := c.writeRecords(ctx, "mark sanctioned", query, map[string]any{"batch": batch})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return int(recInt64(records[0], "updated")), nil
}

// SeverityInput is the pair of fields severity is a pure function of.
type SeverityInput struct {
	Address      string
	IsSanctioned bool
	RiskScore    float64
}

// SeverityInputs returns sanction status and risk score for every address.
func (c *Client) SeverityInputs(ctx context.Context) ([]SeverityInput, error) {
	query := `
	MATCH (a:Address)
	RETURN a.address AS address,
	       coalesce(a.is_sanctioned, false) AS is_sanctioned,
	       coalesce(a.risk_score, 0.0) AS risk_score
	`
	records, err := c.read(ctx, "severity inputs", query, nil)
	if err != nil {
		return nil, err
	}
	out := make([]SeverityInput, 0, len(records))
	for _, record := range records {
		addr := recString(record, "address")
		if addr == "" {
			continue
		}
		out = append(out, SeverityInput{
			Address:      addr,
			IsSanctioned: recBool(record, "is_sanctioned"),
			RiskScore:    recFloat(record, "risk_score"),
		})
	}
	return out, nil
}

// WriteSeverities persists one batch of recomputed severity labels.
func (c *Client) WriteSeverities(ctx context.Context, batch map[string]models.Severity) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(batch))
	for addr, sev := range batch {
		rows = append(rows, map[string]any{"address": addr, "severity": string(sev)})
	}
	query := `
	UNWIND $batch AS row
	MATCH (a:Address {address: row.address})
	SET a.alert_severity = row.severity
	`
	return c.write(ctx, "write severities", query, map[string]any{"batch": rows})
}
