package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const testAddr = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

type fakeIngestStore struct {
	batches [][]models.TransactionRecord
	err     error
}

func (f *fakeIngestStore) IngestTransactions(ctx context.Context, txs []models.TransactionRecord) error {
	if f.err != nil {
		return f.err
	}
	copied := make([]models.TransactionRecord, len(txs))
	copy(copied, txs)
	f.batches = append(f.batches, copied)
	return nil
}

func testClient(serverURL string) *EtherscanClient {
	c := NewEtherscanClient(serverURL, "test-key")
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func txEntry(hash, to, value string) map[string]string {
	return map[string]string{
		"hash":        hash,
		"blockNumber": "18750000",
		"timeStamp":   "1702300800",
		"from":        "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa",
		"to":          to,
		"value":       value,
		"gas":         "21000",
		"gasPrice":    "30000000000",
	}
}

func writeTxList(w http.ResponseWriter, entries []map[string]string) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "1",
		"message": "OK",
		"result":  entries,
	})
}

func TestFetchTransactionsSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "txlist" {
			t.Errorf("action = %q, want txlist", got)
		}
		writeTxList(w, []map[string]string{
			txEntry("0xt1", testAddr, "1000000000000000000"),
			txEntry("0xt2", "", "500"), // contract creation, skipped
			txEntry("0xt3", testAddr, "2000000000000000000"),
		})
	}))
	defer server.Close()

	txs, err := testClient(server.URL).FetchTransactions(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("txs = %d, want 2 (creation skipped)", len(txs))
	}
	if txs[0].From != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("from not lowercased: %q", txs[0].From)
	}
	if txs[0].ValueWei != "1000000000000000000" {
		t.Errorf("value = %q", txs[0].ValueWei)
	}
}

func TestFetchTransactionsPaginates(t *testing.T) {
	pages := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		page := r.URL.Query().Get("page")
		if page == "1" {
			entries := make([]map[string]string, pageSize)
			for i := range entries {
				entries[i] = txEntry(fmt.Sprintf("0xp1-%d", i), testAddr, "100")
			}
			writeTxList(w, entries)
			return
		}
		writeTxList(w, []map[string]string{txEntry("0xp2-0", testAddr, "100")})
	}))
	defer server.Close()

	txs, err := testClient(server.URL).FetchTransactions(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if pages != 2 {
		t.Fatalf("pages fetched = %d, want 2", pages)
	}
	if len(txs) != pageSize+1 {
		t.Fatalf("txs = %d, want %d", len(txs), pageSize+1)
	}
}

func TestFetchTransactionsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "0",
			"message": "No transactions found",
			"result":  []any{},
		})
	}))
	defer server.Close()

	txs, err := testClient(server.URL).FetchTransactions(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("txs = %d, want 0", len(txs))
	}
}

func TestFetchTransactionsRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			json.NewEncoder(w).Encode(map[string]any{
				"status":  "0",
				"message": "NOTOK",
				"result":  "Max rate limit reached",
			})
			return
		}
		writeTxList(w, []map[string]string{txEntry("0xt1", testAddr, "100")})
	}))
	defer server.Close()

	txs, err := testClient(server.URL).FetchTransactions(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(txs) != 1 {
		t.Fatalf("txs = %d, want 1", len(txs))
	}
}

func TestFetchTransactionsErrorKinds(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		result  string
		want    string
	}{
		{"invalid key", http.StatusOK, "NOTOK", "Invalid API Key", KindInvalidKey},
		{"invalid address", http.StatusOK, "NOTOK", "Error! Invalid address format", KindInvalidAddress},
		{"server error", http.StatusInternalServerError, "", "", KindUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.status != http.StatusOK {
					w.WriteHeader(tc.status)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{
					"status":  "0",
					"message": tc.message,
					"result":  tc.result,
				})
			}))
			defer server.Close()

			_, err := testClient(server.URL).FetchTransactions(context.Background(), testAddr)
			if !IsProviderKind(err, tc.want) {
				t.Fatalf("err = %v, want kind %s", err, tc.want)
			}
		})
	}
}

func TestFetchTransactionsMissingKey(t *testing.T) {
	c := NewEtherscanClient("http://unused", "")
	_, err := c.FetchTransactions(context.Background(), testAddr)
	if !IsProviderKind(err, KindInvalidKey) {
		t.Fatalf("err = %v, want kind %s", err, KindInvalidKey)
	}
}

type fakeProvider struct {
	txs []models.TransactionRecord
	err error
}

func (f *fakeProvider) FetchTransactions(ctx context.Context, address string) ([]models.TransactionRecord, error) {
	return f.txs, f.err
}

func TestIngestAddressSummary(t *testing.T) {
	provider := &fakeProvider{txs: []models.TransactionRecord{
		{Hash: "0xt1", From: testAddr, To: "0xb", ValueWei: "1500000000000000000"},
		{Hash: "0xt2", From: testAddr, To: "0xc", ValueWei: "500000000000000000"},
	}}
	store := &fakeIngestStore{}

	summary, err := NewIngestor(provider, store).IngestAddress(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("IngestAddress: %v", err)
	}
	if summary.FetchedCount != 2 || summary.IngestedCount != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", summary.FetchedCount, summary.IngestedCount)
	}
	if math.Abs(summary.TotalValueETH-2.0) > 1e-9 {
		t.Fatalf("total = %v ETH, want 2", summary.TotalValueETH)
	}
	if len(store.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(store.batches))
	}
}

func TestIngestAddressValidatesInput(t *testing.T) {
	ingestor := NewIngestor(&fakeProvider{}, &fakeIngestStore{})
	if _, err := ingestor.IngestAddress(context.Background(), "bogus"); !errors.Is(err, addresses.ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestIngestAddressEmptyFetchSkipsWrite(t *testing.T) {
	store := &fakeIngestStore{}
	summary, err := NewIngestor(&fakeProvider{}, store).IngestAddress(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("IngestAddress: %v", err)
	}
	if summary.FetchedCount != 0 || len(store.batches) != 0 {
		t.Fatalf("fetched = %d, batches = %d; want no writes", summary.FetchedCount, len(store.batches))
	}
}

func TestSampleTransactions(t *testing.T) {
	txs, err := SampleTransactions()
	if err != nil {
		t.Fatalf("SampleTransactions: %v", err)
	}
	if len(txs) == 0 {
		t.Fatal("embedded dataset is empty")
	}
	for _, tx := range txs {
		if tx.Hash == "" || tx.From == "" || tx.To == "" || tx.ValueWei == "" {
			t.Fatalf("incomplete sample transaction: %+v", tx)
		}
	}
}

func TestLoadSample(t *testing.T) {
	store := &fakeIngestStore{}
	n, err := LoadSample(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadSample: %v", err)
	}
	if n == 0 || len(store.batches) != 1 {
		t.Fatalf("loaded = %d, batches = %d", n, len(store.batches))
	}
}
