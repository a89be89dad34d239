package ingest

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

//go:embed sample_transactions.json
var sampleTransactionData []byte

// SampleTransactions decodes the embedded demo dataset: a small transfer
// graph with one high-value corridor for the scoring pipeline to flag.
func SampleTransactions() ([]models.TransactionRecord, error) {
	var txs []models.TransactionRecord
	if err := json.Unmarshal(sampleTransactionData, &txs); err != nil {
		return nil, fmt.Errorf("decode sample dataset: %w", err)
	}
	return txs, nil
}

// LoadSample persists the embedded dataset and returns how many
// transactions were loaded. Loading is idempotent.
func LoadSample(ctx context.Context, store Store) (int, error) {
	txs, err := SampleTransactions()
	if err != nil {
		return 0, err
	}
	if err := store.IngestTransactions(ctx, txs); err != nil {
		return 0, err
	}
	log.Printf("[ingest] loaded %d sample transactions", len(txs))
	return len(txs), nil
}
