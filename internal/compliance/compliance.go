// Package compliance maintains the sanction overlay on the address graph
// and recomputes the four-tier alert severity labels derived from it.
package compliance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// severity thresholds; sanctioned addresses are HIGH regardless of score.
const (
	highRiskThreshold     = 0.95
	mediumRiskThreshold   = 0.75
	elevatedRiskThreshold = 0.5
)

// writeBatchSize bounds a single sanction or severity write statement.
const writeBatchSize = 50

// ErrNoAddressColumn is returned when a blacklist CSV has no recognizable
// address column.
var ErrNoAddressColumn = errors.New("blacklist csv has no address column")

// Store is the slice of the graph adapter the overlay needs.
type Store interface {
	MarkSanctioned(ctx context.Context, batch []string) (int, error)
	SeverityInputs(ctx context.Context) ([]graph.SeverityInput, error)
	WriteSeverities(ctx context.Context, batch map[string]models.Severity) error
}

// Overlay is the compliance engine.
type Overlay struct {
	store Store
}

func New(store Store) *Overlay {
	return &Overlay{store: store}
}

// SeverityFor maps sanction status and risk score to a severity tier.
// Sanctioned addresses are always HIGH.
func SeverityFor(sanctioned bool, risk float64) models.Severity {
	switch {
	case sanctioned:
		return models.SeverityHigh
	case risk >= highRiskThreshold:
		return models.SeverityHigh
	case risk >= mediumRiskThreshold:
		return models.SeverityMedium
	case risk >= elevatedRiskThreshold:
		return models.SeverityElevated
	default:
		return models.SeverityLow
	}
}

// MarkSanctioned normalizes and deduplicates the supplied addresses, then
// flags them in batches. It returns how many addresses matched existing
// nodes; unknown addresses are silently ignored, not created.
func (o *Overlay) MarkSanctioned(ctx context.Context, list []string) (int, error) {
	valid := addresses.NormalizeAll(list)
	if len(valid) == 0 {
		return 0, nil
	}

	matched := 0
	for start := 0; start < len(valid); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(valid) {
			end = len(valid)
		}
		n, err := o.store.MarkSanctioned(ctx, valid[start:end])
		if err != nil {
			return matched, err
		}
		matched += n
	}

	log.Printf("[compliance] sanctioned %d of %d supplied addresses", matched, len(list))
	return matched, nil
}

// EvaluateSeverity recomputes the severity label for every address from its
// current sanction status and risk score, and returns how many labels were
// written.
func (o *Overlay) EvaluateSeverity(ctx context.Context) (int, error) {
	inputs, err := o.store.SeverityInputs(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	batch := make(map[string]models.Severity, writeBatchSize)
	for _, in := range inputs {
		batch[in.Address] = SeverityFor(in.IsSanctioned, in.RiskScore)
		if len(batch) == writeBatchSize {
			if err := o.store.WriteSeverities(ctx, batch); err != nil {
				return written, err
			}
			written += len(batch)
			batch = make(map[string]models.Severity, writeBatchSize)
		}
	}
	if len(batch) > 0 {
		if err := o.store.WriteSeverities(ctx, batch); err != nil {
			return written, err
		}
		written += len(batch)
	}

	log.Printf("[compliance] severity recomputed for %d addresses", written)
	return written, nil
}

// ApplyBlacklistCSV reads addresses out of a CSV export and sanctions them.
// The address column is located by header name; address, addr, and wallet
// are accepted. Rows with invalid addresses are skipped.
func (o *Overlay) ApplyBlacklistCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read blacklist header: %w", err)
	}
	col := addressColumn(header)
	if col < 0 {
		return 0, ErrNoAddressColumn
	}

	var list []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read blacklist row: %w", err)
		}
		if col < len(row) {
			list = append(list, row[col])
		}
	}

	return o.MarkSanctioned(ctx, list)
}

func addressColumn(header []string) int {
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "address", "addr", "wallet":
			return i
		}
	}
	return -1
}
