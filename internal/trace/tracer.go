// Package trace implements bounded-hop fund flow tracing over the SENT
// transaction graph: targeted shortest-path search between two addresses,
// or open neighborhood exploration from a single source. Raw path records
// are merged into a single deduplicated subgraph.
package trace

import (
	"context"
	"log"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const (
	// MinHops..MaxHops is the hard traversal-cost ceiling. Requested depths
	// are clamped silently rather than rejected.
	MinHops = 1
	MaxHops = 8

	// NeighborhoodPathCap bounds open exploration store-side. The result is
	// a sample of the neighborhood, not a complete traversal.
	NeighborhoodPathCap = 50
)

// Store is the slice of the graph adapter the tracer needs.
type Store interface {
	ShortestPath(ctx context.Context, source, target string, maxHops int) ([]graph.Path, error)
	NeighborhoodPaths(ctx context.Context, source string, maxHops, limit int) ([]graph.Path, error)
}

// Tracer is the trace engine.
type Tracer struct {
	store Store
}

func New(store Store) *Tracer {
	return &Tracer{store: store}
}

// Trace searches for fund flows from source. With a target, a single
// shortest path bounded by maxHops is searched; without one, the directed
// neighborhood is explored. maxHops is clamped to [MinHops, MaxHops].
func (t *Tracer) Trace(ctx context.Context, source, target string, maxHops int) (*models.TraceResult, error) {
	src, err := addresses.Normalize(source)
	if err != nil {
		return nil, err
	}
	dst := ""
	if target != "" {
		if dst, err = addresses.Normalize(target); err != nil {
			return nil, err
		}
	}
	hops := clampHops(maxHops)

	var paths []graph.Path
	if dst != "" {
		paths, err = t.store.ShortestPath(ctx, src, dst, hops)
	} else {
		paths, err = t.store.NeighborhoodPaths(ctx, src, hops, NeighborhoodPathCap)
	}
	if err != nil {
		return nil, err
	}

	// An unknown source and a genuinely absent path both resolve to an
	// empty subgraph; the two cases are deliberately merged.
	nodes, edges := mergePaths(paths)
	if len(nodes) == 0 {
		return nil, graph.ErrNotFound
	}

	result := &models.TraceResult{
		Nodes: nodes,
		Edges: edges,
		Metadata: models.TraceMetadata{
			Source:    src,
			Target:    dst,
			MaxHops:   hops,
			PathCount: len(paths),
			EdgeCount: len(edges),
			NodeCount: len(nodes),
		},
	}

	log.Printf("[trace] %s -> %s completed (maxHops=%d, paths=%d, edges=%d, nodes=%d)",
		src, orWildcard(dst), hops, len(paths), len(edges), len(nodes))

	return result, nil
}

func clampHops(requested int) int {
	if requested < MinHops {
		return MinHops
	}
	if requested > MaxHops {
		return MaxHops
	}
	return requested
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// mergePaths folds raw path records into one subgraph. Nodes deduplicate by
// address with first-occurrence attributes winning; edges deduplicate by
// relationship element identity, so one relationship shared by several paths
// is emitted once. Non-Address nodes and non-SENT relationships are skipped.
func mergePaths(paths []graph.Path) ([]models.TraceNode, []models.TraceEdge) {
	var nodes []models.TraceNode
	var edges []models.TraceEdge
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)

	for _, path := range paths {
		// Relationship endpoints arrive as element ids; resolve them against
		// the path's own nodes.
		elementToAddr := make(map[string]string, len(path.Nodes))

		for _, node := range path.Nodes {
			if !node.HasLabel(graph.LabelAddress) {
				continue
			}
			addr := graph.PropString(node.Props, "address")
			if addr == "" {
				continue
			}
			elementToAddr[node.ElementID] = addr
			if seenNodes[addr] {
				continue
			}
			seenNodes[addr] = true
			nodes = append(nodes, models.TraceNode{
				Address:      addr,
				ClusterID:    graph.PropStringPtr(node.Props, "cluster_id"),
				RiskScore:    graph.PropFloatPtr(node.Props, "risk_score"),
				IsAnomaly:    graph.PropBool(node.Props, "is_anomaly"),
				IsSanctioned: graph.PropBool(node.Props, "is_sanctioned"),
			})
		}

		for _, rel := range path.Relationships {
			if rel.Type != graph.RelSent {
				continue
			}
			src := elementToAddr[rel.StartElementID]
			dst := elementToAddr[rel.EndElementID]
			if src == "" || dst == "" {
				continue
			}
			if seenEdges[rel.ElementID] {
				continue
			}
			seenEdges[rel.ElementID] = true
			edges = append(edges, models.TraceEdge{
				TxHash:      graph.PropString(rel.Props, "hash"),
				Source:      src,
				Target:      dst,
				ValueWei:    graph.PropString(rel.Props, "value_wei"),
				Timestamp:   graph.PropInt64(rel.Props, "timestamp"),
				BlockNumber: graph.PropInt64(rel.Props, "block_number"),
			})
		}
	}

	return nodes, edges
}
