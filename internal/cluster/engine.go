// Package cluster assigns connected-component cluster identifiers to
// addresses in the transaction graph. Assignment is incremental and
// idempotent: only unclustered addresses are picked up, components are
// walked undirected to a bounded depth, and identifiers are written
// set-if-absent so repeated runs converge instead of churning.
package cluster

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const (
	// MaxClusterDepth bounds the undirected component walk. Deeper walks
	// merge more of the graph into single clusters at quadratic cost.
	MaxClusterDepth = 6

	DefaultBatchSize = 50
	MaxBatchSize     = 500
)

// ClusteringError reports a failed run together with the number of addresses
// that were already assigned before the failure. Assignments are not rolled
// back; a later run picks up where this one stopped.
type ClusteringError struct {
	Assigned int
	Err      error
}

func (e *ClusteringError) Error() string {
	return fmt.Sprintf("clustering stopped after %d assignments: %v", e.Assigned, e.Err)
}

func (e *ClusteringError) Unwrap() error { return e.Err }

// Store is the slice of the graph adapter the engine needs.
type Store interface {
	FetchUnclustered(ctx context.Context, limit int) ([]string, error)
	ComponentMembers(ctx context.Context, seed string, depth int) ([]string, error)
	AssignClusterID(ctx context.Context, members []string, clusterID string) error
	AddressProfile(ctx context.Context, address string) (*models.AddressProfile, error)
}

// Engine is the clustering engine.
type Engine struct {
	store Store

	// mu serializes runs within this process. Concurrent processes are
	// still possible; the set-if-absent write keeps their races benign.
	mu sync.Mutex
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// AssignClusters sweeps unclustered addresses in batches of batchSize and
// assigns each a component-wide cluster id. It returns the number of
// addresses assigned. On failure the error is a *ClusteringError carrying
// the partial count.
func (e *Engine) AssignClusters(ctx context.Context, batchSize int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := clampBatchSize(batchSize)
	assigned := 0

	for {
		batch, err := e.store.FetchUnclustered(ctx, size)
		if err != nil {
			return assigned, &ClusteringError{Assigned: assigned, Err: err}
		}
		if len(batch) == 0 {
			break
		}

		for _, seed := range batch {
			members, err := e.store.ComponentMembers(ctx, seed, MaxClusterDepth)
			if err != nil {
				return assigned, &ClusteringError{Assigned: assigned, Err: err}
			}
			if len(members) == 0 {
				// Seed with no reachable component still gets its own cluster.
				members = []string{seed}
			}

			clusterID := uuid.New().String()
			if err := e.store.AssignClusterID(ctx, members, clusterID); err != nil {
				return assigned, &ClusteringError{Assigned: assigned, Err: err}
			}
			assigned += len(members)
		}
	}

	log.Printf("[cluster] sweep complete (assigned=%d, batchSize=%d)", assigned, size)
	return assigned, nil
}

// Profile returns transaction statistics for a single address.
func (e *Engine) Profile(ctx context.Context, address string) (*models.AddressProfile, error) {
	addr, err := addresses.Normalize(address)
	if err != nil {
		return nil, err
	}
	return e.store.AddressProfile(ctx, addr)
}

func clampBatchSize(requested int) int {
	if requested == 0 {
		return DefaultBatchSize
	}
	if requested < 1 {
		return 1
	}
	if requested > MaxBatchSize {
		return MaxBatchSize
	}
	return requested
}
