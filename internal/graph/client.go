// Package graph is the query adapter for the external property graph store.
// It issues pattern-match Cypher against Neo4j and maps results into typed
// in-memory fragments. All graph data is owned by the store; this package
// only reads it and writes back scalar analysis fields.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound marks a valid query that matched no data.
var ErrNotFound = errors.New("not found in graph store")

// StoreError wraps any failure communicating with or executing against the
// graph store. The underlying driver error is preserved for logging but its
// type never leaks to callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("graph store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// queryTimeout bounds every store round trip.
const queryTimeout = 30 * time.Second

// Client is the shared graph store handle. It is constructed once at startup
// and injected into each engine; the driver itself is safe for concurrent
// session creation.
type Client struct {
	driver neo4j.DriverWithContext
}

// Connect builds a driver and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, wrapErr("connect", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, wrapErr("verify connectivity", err)
	}
	return &Client{driver: driver}, nil
}

// Close releases the driver and its connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraints and indexes the engines
// rely on. Safe to run on every startup.
func (c *Client) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT addr_address IF NOT EXISTS FOR (a:Address) REQUIRE a.address IS UNIQUE`,
		`CREATE CONSTRAINT txn_hash IF NOT EXISTS FOR (t:Transaction) REQUIRE t.hash IS UNIQUE`,
		`CREATE INDEX addr_cluster IF NOT EXISTS FOR (a:Address) ON (a.cluster_id)`,
		`CREATE INDEX addr_risk IF NOT EXISTS FOR (a:Address) ON (a.risk_score)`,
	}
	for _, stmt := range stmts {
		if err := c.write(ctx, "ensure schema", stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// read runs a query inside a read transaction and returns collected records.
func (c *Client) read(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return out.([]*neo4j.Record), nil
}

// write runs a statement inside a write transaction, discarding records.
func (c *Client) write(ctx context.Context, op, query string, params map[string]any) error {
	_, err := c.writeRecords(ctx, op, query, params)
	return err
}

// writeRecords runs a write statement and returns any records it produced.
func (c *Client) writeRecords(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return out.([]*neo4j.Record), nil
}
