// Package ingest loads Ethereum transactions into the graph store: from the
// Etherscan account API, from an embedded sample dataset, or from a Kafka
// transaction feed.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// ProviderError kinds. Callers branch on Kind to decide between retry,
// reject, and bubble-up.
const (
	KindRateLimited    = "rate_limited"
	KindInvalidKey     = "invalid_key"
	KindInvalidAddress = "invalid_address"
	KindUnavailable    = "unavailable"
)

// ProviderError is a classified failure from the transaction data provider.
type ProviderError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderKind reports whether err is a ProviderError of the given kind.
func IsProviderKind(err error, kind string) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

const (
	pageSize = 100
	maxPages = 10

	retryAttempts  = 4
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
	retryJitter    = 250 * time.Millisecond
)

// EtherscanClient fetches normal transactions for an address via the
// account/txlist endpoint.
type EtherscanClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client

	// sleep is swapped by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEtherscanClient(baseURL, apiKey string) *EtherscanClient {
	return &EtherscanClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		sleep:   sleepCtx,
	}
}

type txListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type txListEntry struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Gas         string `json:"gas"`
	GasPrice    string `json:"gasPrice"`
}

// FetchTransactions pages through account/txlist until a short page. Rate
// limited calls are retried with capped exponential backoff and jitter;
// other provider errors abort immediately.
func (c *EtherscanClient) FetchTransactions(ctx context.Context, address string) ([]models.TransactionRecord, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Kind: KindInvalidKey, Message: "api key not configured"}
	}

	var all []models.TransactionRecord
	for page := 1; page <= maxPages; page++ {
		batch, err := c.fetchPageWithRetry(ctx, address, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return all, nil
}

func (c *EtherscanClient) fetchPageWithRetry(ctx context.Context, address string, page int) ([]models.TransactionRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := c.fetchPage(ctx, address, page)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if !IsProviderKind(err, KindRateLimited) || attempt == retryAttempts {
			return nil, err
		}

		wait := retryBaseDelay << (attempt - 1)
		if wait > retryMaxDelay {
			wait = retryMaxDelay
		}
		wait += time.Duration(rand.Int63n(int64(retryJitter)))
		log.Printf("[ingest] rate limited, retrying page %d in %s (attempt %d/%d)",
			page, wait, attempt, retryAttempts)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *EtherscanClient) fetchPage(ctx context.Context, address string, page int) ([]models.TransactionRecord, error) {
	q := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {strconv.Itoa(page)},
		"offset":     {strconv.Itoa(pageSize)},
		"sort":       {"desc"},
		"apikey":     {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Kind: KindUnavailable, Message: "build request", Err: err}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &ProviderError{Kind: KindUnavailable, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{Kind: KindRateLimited, Message: "http 429"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Kind: KindUnavailable, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	var payload txListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ProviderError{Kind: KindUnavailable, Message: "decode response", Err: err}
	}

	if payload.Status != "1" {
		return nil, classifyAPIError(payload)
	}

	var entries []txListEntry
	if err := json.Unmarshal(payload.Result, &entries); err != nil {
		return nil, &ProviderError{Kind: KindUnavailable, Message: "decode result", Err: err}
	}
	return parseEntries(entries), nil
}

// classifyAPIError maps the provider's status-0 envelope onto error kinds.
// "No transactions found" is a normal empty page, not an error.
func classifyAPIError(payload txListResponse) error {
	msg := payload.Message
	var detail string
	_ = json.Unmarshal(payload.Result, &detail)

	combined := strings.ToLower(msg + " " + detail)
	switch {
	case strings.Contains(combined, "no transactions found"):
		return nil
	case strings.Contains(combined, "rate limit"):
		return &ProviderError{Kind: KindRateLimited, Message: msg}
	case strings.Contains(combined, "invalid api key"):
		return &ProviderError{Kind: KindInvalidKey, Message: msg}
	case strings.Contains(combined, "invalid address"):
		return &ProviderError{Kind: KindInvalidAddress, Message: msg}
	default:
		return &ProviderError{Kind: KindUnavailable, Message: msg + " " + detail}
	}
}

// parseEntries converts raw rows, skipping contract creations (no recipient)
// and malformed rows.
func parseEntries(entries []txListEntry) []models.TransactionRecord {
	out := make([]models.TransactionRecord, 0, len(entries))
	for _, e := range entries {
		if e.To == "" {
			continue
		}
		block, err := strconv.ParseInt(e.BlockNumber, 10, 64)
		if err != nil {
			log.Printf("[ingest] skipping malformed entry %s: bad block number %q", e.Hash, e.BlockNumber)
			continue
		}
		ts, err := strconv.ParseInt(e.TimeStamp, 10, 64)
		if err != nil {
			log.Printf("[ingest] skipping malformed entry %s: bad timestamp %q", e.Hash, e.TimeStamp)
			continue
		}
		gas, err := strconv.ParseInt(e.Gas, 10, 64)
		if err != nil {
			log.Printf("[ingest] skipping malformed entry %s: bad gas %q", e.Hash, e.Gas)
			continue
		}
		if _, ok := new(big.Int).SetString(e.Value, 10); !ok {
			log.Printf("[ingest] skipping malformed entry %s: bad value %q", e.Hash, e.Value)
			continue
		}
		out = append(out, models.TransactionRecord{
			Hash:        e.Hash,
			BlockNumber: block,
			Timestamp:   ts,
			From:        strings.ToLower(e.From),
			To:          strings.ToLower(e.To),
			ValueWei:    e.Value,
			Gas:         gas,
			GasPriceWei: e.GasPrice,
		})
	}
	return out
}

// Store is the slice of the graph adapter ingestion needs.
type Store interface {
	IngestTransactions(ctx context.Context, txs []models.TransactionRecord) error
}

// Provider abstracts the transaction source so tests and the sample loader
// can feed the same pipeline.
type Provider interface {
	FetchTransactions(ctx context.Context, address string) ([]models.TransactionRecord, error)
}

// Ingestor ties a provider to the store.
type Ingestor struct {
	provider Provider
	store    Store
}

func NewIngestor(provider Provider, store Store) *Ingestor {
	return &Ingestor{provider: provider, store: store}
}

// IngestAddress fetches and persists all transactions for one address and
// summarizes the run. The total is a full-precision wei sum converted to
// ETH only for reporting.
func (i *Ingestor) IngestAddress(ctx context.Context, address string) (*models.IngestSummary, error) {
	addr, err := addresses.Normalize(address)
	if err != nil {
		return nil, err
	}

	txs, err := i.provider.FetchTransactions(ctx, addr)
	if err != nil {
		return nil, err
	}

	if len(txs) > 0 {
		if err := i.store.IngestTransactions(ctx, txs); err != nil {
			return nil, err
		}
	}

	summary := &models.IngestSummary{
		Address:       addr,
		FetchedCount:  len(txs),
		IngestedCount: len(txs),
		TotalValueETH: totalValueETH(txs),
	}
	log.Printf("[ingest] %s: ingested %d transactions (%.6f ETH total)",
		addr, summary.IngestedCount, summary.TotalValueETH)
	return summary, nil
}

func totalValueETH(txs []models.TransactionRecord) float64 {
	total := new(big.Int)
	for _, tx := range txs {
		v, ok := new(big.Int).SetString(tx.ValueWei, 10)
		if !ok {
			continue
		}
		total.Add(total, v)
	}
	eth, _ := new(big.Float).Quo(
		new(big.Float).SetInt(total),
		new(big.Float).SetInt(big.NewInt(params.Ether)),
	).Float64()
	return eth
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
