package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EdgeTypeInferred labels edges produced by transitive inference.
const EdgeTypeInferred = "inferred"

// Properties is a string-keyed bag of JSON values that remembers insertion order.
type Properties struct {
	keys   []string
	values map[string]any
}

// NewProperties builds Properties from pairs of key, value.
func NewProperties(kv ...any) Properties {
	var p Properties
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			p.Set(k, kv[i+1])
		}
	}
	return p
}

// Set stores v under k. Existing keys keep their position.
func (p *Properties) Set(k string, v any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.values[k] = v
}

// Get returns the value stored under k.
func (p Properties) Get(k string) (any, bool) {
	v, ok := p.values[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p Properties) Len() int { return len(p.keys) }

// Clone returns a copy that shares no maps or slices with p. Values are
// copied shallowly.
func (p Properties) Clone() Properties {
	var out Properties
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// MarshalJSON writes keys in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range p.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON reads an object, preserving key order from the document.
func (p *Properties) UnmarshalJSON(data []byte) error {
	*p = Properties{}
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil // null
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		p.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// Node is a labeled entity. Nodes never reference other nodes directly;
// Adjacency holds neighbor ids.
type Node struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Properties   Properties `json:"properties"`
	Embedding    []float32  `json:"embedding,omitempty"`
	Weight       float64    `json:"weight"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// Edge is a directed, typed, weighted relation. Traversal treats it as undirected.
type Edge struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Type           string    `json:"edge_type"`
	Strength       float64   `json:"strength"`
	TraversalCount int       `json:"traversal_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Cluster is derived state produced by a clustering pass.
type Cluster struct {
	ID        int       `json:"id"`
	Theme     string    `json:"theme"`
	Members   []string  `json:"members"`
	Coherence float64   `json:"coherence"`
	CreatedAt time.Time `json:"created_at"`
}

// EdgeID is the deterministic id of a caller-created edge.
func EdgeID(from, to string) string { return from + "_" + to }

// InferredEdgeID is the deterministic id of an inference-derived edge.
func InferredEdgeID(from, to string) string { return EdgeID(from, to) + "_inferred" }

// Clamp bounds strengths and weights to [0.1, 1.0].
func Clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0.1
	case v < 0.1:
		return 0.1
	case v > 1.0:
		return 1.0
	}
	return v
}
