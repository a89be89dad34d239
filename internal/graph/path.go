package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Node is a graph node along a traversed path.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// Relationship is a directed edge along a traversed path. Start and End are
// element identities resolved against the path's nodes.
type Relationship struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Props          map[string]any
}

// Path is one ordered path record returned by a traversal query.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// HasLabel reports whether the node carries the given label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// collectPaths maps the "path" column of each record into typed paths.
// Records without a path value are skipped.
func collectPaths(records []*neo4j.Record) []Path {
	paths := make([]Path, 0, len(records))
	for _, record := range records {
		raw, ok := record.Get("path")
		if !ok || raw == nil {
			continue
		}
		p, ok := raw.(dbtype.Path)
		if !ok {
			continue
		}
		paths = append(paths, mapPath(p))
	}
	return paths
}

func mapPath(p dbtype.Path) Path {
	out := Path{
		Nodes:         make([]Node, 0, len(p.Nodes)),
		Relationships: make([]Relationship, 0, len(p.Relationships)),
	}
	for _, n := range p.Nodes {
		out.Nodes = append(out.Nodes, Node{
			ElementID: n.ElementId,
			Labels:    n.Labels,
			Props:     n.Props,
		})
	}
	for _, r := range p.Relationships {
		out.Relationships = append(out.Relationships, Relationship{
			ElementID:      r.ElementId,
			Type:           r.Type,
			StartElementID: r.StartElementId,
			EndElementID:   r.EndElementId,
			Props:          r.Props,
		})
	}
	return out
}

// Property accessors tolerate both absent keys and driver nulls, returning
// zero values so callers can treat optional store fields uniformly.

func PropString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func PropInt64(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func PropFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func PropBool(props map[string]any, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}

// PropFloatPtr returns nil when the property is absent or null.
func PropFloatPtr(props map[string]any, key string) *float64 {
	switch v := props[key].(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

// PropStringPtr returns nil when the property is absent or null.
func PropStringPtr(props map[string]any, key string) *string {
	if v, ok := props[key].(string); ok {
		return &v
	}
	return nil
}

// record value accessors for plain (non-path) result columns.

func recString(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func recInt64(record *neo4j.Record, key string) int64 {
	if v, ok := record.Get(key); ok {
		switch n := v.(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		}
	}
	return 0
}

func recFloat(record *neo4j.Record, key string) float64 {
	if v, ok := record.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

func recBool(record *neo4j.Record, key string) bool {
	if v, ok := record.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func recFloatPtr(record *neo4j.Record, key string) *float64 {
	if v, ok := record.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return &n
		case int64:
			f := float64(n)
			return &f
		}
	}
	return nil
}

func recStringPtr(record *neo4j.Record, key string) *string {
	if v, ok := record.Get(key); ok {
		if s, ok := v.(string); ok {
			return &s
		}
	}
	return nil
}

func recStrings(record *neo4j.Record, key string) []string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
