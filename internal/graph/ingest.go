package graph

import (
	"context"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// IngestTransactions upserts a batch of transfers. MERGE on the transaction
// hash makes re-ingestion of the same transaction idempotent: nodes, the
// SENT relationship, and the FROM/TO links are created once and property
// values are overwritten with identical data.
func (c *Client) IngestTransactions(ctx context.Context, txs []models.TransactionRecord) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, map[string]any{
			"hash":          tx.Hash,
			"from_address":  tx.From,
			"to_address":    tx.To,
			"value_wei":     tx.ValueWei,
			"gas":           tx.Gas,
			"gas_price_wei": tx.GasPriceWei,
			"block_number":  tx.BlockNumber,
			"timestamp":     tx.Timestamp,
		})
	}
	query := `
	UNWIND $transactions AS tx
	MERGE (sender:Address {address: tx.from_address})
	MERGE (receiver:Address {address: tx.to_address})
	MERGE (txn:Transaction {hash: tx.hash})
	SET txn.block_number = tx.block_number,
	    txn.timestamp = tx.timestamp,
	    txn.value_wei = tx.value_wei,
	    txn.gas = tx.gas,
	    txn.gas_price_wei = tx.gas_price_wei
	MERGE (sender)-[rel:SENT {hash: tx.hash}]->(receiver)
	SET rel.value_wei = tx.value_wei,
	    rel.gas = tx.gas,
	    rel.gas_price_wei = tx.gas_price_wei,
	    rel.block_number = tx.block_number,
	    rel.timestamp = tx.timestamp
	MERGE (sender)<-[:FROM]-(txn)
	MERGE (txn)-[:TO]->(receiver)
	`
	return c.write(ctx, "ingest transactions", query, map[string]any{"transactions": rows})
}
