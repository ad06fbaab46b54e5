// Package store provides the graph.Store used to hold pipeline steps.
//
// Unlike the default memory store of github.com/dominikbraun/graph it keeps vertices
// and edges in insertion order, so every listing is deterministic, and it answers
// reachability questions directly from its adjacency maps.
package store

import (
	"fmt"
	"sync"

	"github.com/dominikbraun/graph"
)

// OrderedStore is a graph.Store that also exposes insertion order and reachability.
type OrderedStore[K comparable, T any] interface {
	graph.Store[K, T]
	// Index returns the insertion index of a vertex.
	Index(k K) (int, bool)
	// Successors returns the direct successors of a vertex in edge insertion order.
	Successors(k K) []K
	// Predecessors returns the direct predecessors of a vertex in edge insertion order.
	Predecessors(k K) []K
	// CreatesCycle reports whether an edge source -> target would close a cycle.
	CreatesCycle(source, target K) (bool, error)
	// Path returns a path from -> to following existing edges, or nil.
	Path(from, to K) []K
}

// MemoryStore is an in-memory OrderedStore.
type MemoryStore[K comparable, T any] struct {
	lock             sync.RWMutex
	order            []K
	index            map[K]int
	vertices         map[K]T
	vertexProperties map[K]*graph.VertexProperties

	// outEdges and inEdges are keyed by the hash of the opposite vertex for O(1) access.
	// outOrder and inOrder remember the order in which those keys were added.
	outEdges map[K]map[K]graph.Edge[K] // source -> target
	inEdges  map[K]map[K]graph.Edge[K] // target -> source
	outOrder map[K][]K
	inOrder  map[K][]K
	edges    []graph.Edge[K]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[K comparable, T any]() *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		index:            make(map[K]int),
		vertices:         make(map[K]T),
		vertexProperties: make(map[K]*graph.VertexProperties),
		outEdges:         make(map[K]map[K]graph.Edge[K]),
		inEdges:          make(map[K]map[K]graph.Edge[K]),
		outOrder:         make(map[K][]K),
		inOrder:          make(map[K][]K),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.index[k] = len(s.order)
	s.order = append(s.order, k)
	s.vertices[k] = t
	s.vertexProperties[k] = &p

	return nil
}

// ListVertices returns vertex hashes in insertion order.
func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	hashes := make([]K, len(s.order))
	copy(hashes, s.order)

	return hashes, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	p := s.vertexProperties[k]

	return v, *p, nil
}

func (s *MemoryStore[K, T]) Index(k K) (int, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	idx, ok := s.index[k]

	return idx, ok
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}

	if len(s.inEdges[k]) > 0 || len(s.outEdges[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, k)
	delete(s.outEdges, k)
	delete(s.inOrder, k)
	delete(s.outOrder, k)
	delete(s.vertices, k)
	delete(s.vertexProperties, k)

	pos := s.index[k]
	delete(s.index, k)
	s.order = append(s.order[:pos], s.order[pos+1:]...)

	for i := pos; i < len(s.order); i++ {
		s.index[s.order[i]] = i
	}

	return nil
}

func (s *MemoryStore[K, T]) AddEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash]; !ok {
		s.outEdges[sourceHash] = make(map[K]graph.Edge[K])
	}

	if _, ok := s.outEdges[sourceHash][targetHash]; ok {
		return graph.ErrEdgeAlreadyExists
	}

	s.outEdges[sourceHash][targetHash] = edge
	s.outOrder[sourceHash] = append(s.outOrder[sourceHash], targetHash)

	if _, ok := s.inEdges[targetHash]; !ok {
		s.inEdges[targetHash] = make(map[K]graph.Edge[K])
	}

	s.inEdges[targetHash][sourceHash] = edge
	s.inOrder[targetHash] = append(s.inOrder[targetHash], sourceHash)
	s.edges = append(s.edges, edge)

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	if _, err := s.Edge(sourceHash, targetHash); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.outEdges[sourceHash][targetHash] = edge
	s.inEdges[targetHash][sourceHash] = edge

	for i, e := range s.edges {
		if e.Source == sourceHash && e.Target == targetHash {
			s.edges[i] = edge
		}
	}

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(sourceHash, targetHash K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[targetHash], sourceHash)
	delete(s.outEdges[sourceHash], targetHash)
	s.outOrder[sourceHash] = without(s.outOrder[sourceHash], targetHash)
	s.inOrder[targetHash] = without(s.inOrder[targetHash], sourceHash)

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == sourceHash && e.Target == targetHash {
			continue
		}

		kept = append(kept, e)
	}

	s.edges = kept

	return nil
}

func (s *MemoryStore[K, T]) Edge(sourceHash, targetHash K) (graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sourceEdges, ok := s.outEdges[sourceHash]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	edge, ok := sourceEdges[targetHash]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

// ListEdges returns edges in insertion order.
func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[K], len(s.edges))
	copy(res, s.edges)

	return res, nil
}

func (s *MemoryStore[K, T]) Successors(k K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return append([]K(nil), s.outOrder[k]...)
}

func (s *MemoryStore[K, T]) Predecessors(k K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return append([]K(nil), s.inOrder[k]...)
}

// CreatesCycle walks the predecessors of source looking for target. If target is an
// ancestor of source (or the same vertex), source -> target would close a cycle.
//
// It reads inEdges directly instead of building a predecessor map, so no copies are made.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	if _, _, err := s.Vertex(source); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", source, err)
	}

	if _, _, err := s.Vertex(target); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", target, err)
	}

	if source == target {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	stack := []K{source}
	visited := make(map[K]struct{})

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[current]; ok {
			continue
		}

		if current == target {
			return true, nil
		}

		visited[current] = struct{}{}

		for adjacency := range s.inEdges[current] {
			stack = append(stack, adjacency)
		}
	}

	return false, nil
}

// Path runs a breadth-first search over outgoing edges and returns the first path found.
func (s *MemoryStore[K, T]) Path(from, to K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if _, ok := s.vertices[from]; !ok {
		return nil
	}

	if from == to {
		return []K{from}
	}

	parent := map[K]K{}
	visited := map[K]struct{}{from: {}}
	queue := []K{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range s.outOrder[current] {
			if _, ok := visited[next]; ok {
				continue
			}

			visited[next] = struct{}{}
			parent[next] = current

			if next == to {
				path := []K{to}
				for step := to; step != from; {
					step = parent[step]
					path = append([]K{step}, path...)
				}

				return path
			}

			queue = append(queue, next)
		}
	}

	return nil
}

func without[K comparable](list []K, k K) []K {
	res := make([]K, 0, len(list))
	for _, item := range list {
		if item != k {
			res = append(res, item)
		}
	}

	return res
}

var _ OrderedStore[string, string] = (*MemoryStore[string, string])(nil)
