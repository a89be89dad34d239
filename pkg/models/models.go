package models

// Severity is the four-tier compliance label attached to an address.
// It is recomputed deterministically from sanction status and risk score,
// never stored as the source of truth for either.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityElevated Severity = "ELEVATED"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
)

// TransactionRecord is one Ethereum value transfer as ingested from the
// transaction data provider. ValueWei and GasPriceWei are decimal strings:
// wei amounts overflow int64 above ~9.2 ETH and the graph store's integers
// are 64-bit, so arbitrary precision is preserved end to end as text.
type TransactionRecord struct {
	Hash        string `json:"hash"`
	BlockNumber int64  `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"` // unix epoch seconds
	From        string `json:"from"`
	To          string `json:"to"`
	ValueWei    string `json:"valueWei"`
	Gas         int64  `json:"gas"`
	GasPriceWei string `json:"gasPriceWei"`
}

// TraceNode is a deduplicated address node in a traced subgraph.
type TraceNode struct {
	Address      string   `json:"address"`
	ClusterID    *string  `json:"clusterId,omitempty"`
	RiskScore    *float64 `json:"riskScore,omitempty"`
	IsAnomaly    bool     `json:"isAnomaly"`
	IsSanctioned bool     `json:"isSanctioned"`
}

// TraceEdge is one SENT relationship observed along a traced path.
type TraceEdge struct {
	TxHash      string `json:"txHash"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	ValueWei    string `json:"valueWei,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
}

// TraceMetadata summarizes a completed trace.
type TraceMetadata struct {
	Source    string `json:"source"`
	Target    string `json:"target,omitempty"`
	MaxHops   int    `json:"maxHops"`
	PathCount int    `json:"pathCount"`
	EdgeCount int    `json:"edgeCount"`
	NodeCount int    `json:"nodeCount"`
}

// TraceResult is the merged subgraph returned by the trace engine.
type TraceResult struct {
	Nodes    []TraceNode   `json:"nodes"`
	Edges    []TraceEdge   `json:"edges"`
	Metadata TraceMetadata `json:"metadata"`
}

// AddressProfile carries per-address metadata and degree statistics.
type AddressProfile struct {
	Address              string   `json:"address"`
	ClusterID            *string  `json:"clusterId,omitempty"`
	RiskScore            *float64 `json:"riskScore,omitempty"`
	IsAnomaly            bool     `json:"isAnomaly"`
	IsSanctioned         bool     `json:"isSanctioned"`
	InCount              int64    `json:"inCount"`
	OutCount             int64    `json:"outCount"`
	UniqueCounterparties int      `json:"uniqueCounterparties"`
}

// AddressScore is one row of scoring pipeline output, persisted back to the
// store and returned from alert refreshes.
type AddressScore struct {
	Address              string  `json:"address"`
	ClusterID            *string `json:"clusterId,omitempty"`
	RiskScore            float64 `json:"riskScore"`
	IsAnomaly            bool    `json:"isAnomaly"`
	TxRate               float64 `json:"txRate"`
	UniqueCounterparties int     `json:"uniqueCounterparties"`
}

// Alert is the derived view of a scored address, ordered by risk.
type Alert struct {
	Address      string   `json:"address"`
	ClusterID    *string  `json:"clusterId,omitempty"`
	RiskScore    float64  `json:"riskScore"`
	IsAnomaly    bool     `json:"isAnomaly"`
	IsSanctioned bool     `json:"isSanctioned"`
	Severity     Severity `json:"severity"`
}

// IngestSummary reports the outcome of a provider ingestion run.
type IngestSummary struct {
	Address       string  `json:"address"`
	FetchedCount  int     `json:"fetchedCount"`
	IngestedCount int     `json:"ingestedCount"`
	TotalValueETH float64 `json:"totalValueEth"`
}
