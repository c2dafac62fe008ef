package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/store"
)

// QueryResult is one ranked match.
type QueryResult struct {
	Node      graph.Node `json:"node"`
	Relevance float64    `json:"relevance"`
}

// Query matches nodes whose id or type contains text, case-insensitively.
// Relevance is the fraction of the query's words found anywhere in the id,
// type and encoded properties. Every match has last_accessed refreshed, and
// the top query_limit are returned by descending relevance, ties kept in
// node insertion order.
func (e *Engine) Query(ctx context.Context, text string) ([]QueryResult, error) {
	const op = "query"
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, validationError(op, "query text must not be empty")
	}
	words := strings.Fields(needle)

	unlock, err := e.lock.Lock(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	var (
		results []QueryResult
		muts    []store.Mutation
	)
	for _, n := range e.g.Nodes() {
		id, typ := strings.ToLower(n.ID), strings.ToLower(n.Type)
		if !strings.Contains(id, needle) && !strings.Contains(typ, needle) {
			continue
		}
		props, _ := json.Marshal(n.Properties)
		haystack := id + " " + typ + " " + strings.ToLower(string(props))
		found := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				found++
			}
		}

		n.LastAccessed = now
		muts = append(muts, store.NodeTouch{ID: n.ID, At: now})
		results = append(results, QueryResult{
			Node:      cloneNode(n),
			Relevance: float64(found) / float64(len(words)),
		})
	}
	e.persist(muts...)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > e.cfg.QueryLimit {
		results = results[:e.cfg.QueryLimit]
	}
	return results, nil
}

// SimilarResult is a node ranked by embedding similarity.
type SimilarResult struct {
	Node       graph.Node `json:"node"`
	Similarity float64    `json:"similarity"`
}

// Similar ranks other nodes by cosine similarity of their embeddings to id's.
func (e *Engine) Similar(ctx context.Context, id string, limit int) ([]SimilarResult, error) {
	const op = "similar"
	if limit <= 0 {
		limit = e.cfg.QueryLimit
	}

	unlock, err := e.lock.RLock(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target, ok := e.g.Node(id)
	if !ok {
		return nil, notFound(op, "node", id)
	}
	var results []SimilarResult
	for _, n := range e.g.Nodes() {
		if n.ID == id {
			continue
		}
		sim := CosineSimilarity(target.Embedding, n.Embedding)
		if sim <= 0 {
			continue
		}
		results = append(results, SimilarResult{Node: cloneNode(n), Similarity: sim})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
