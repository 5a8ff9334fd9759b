package hnsw

import "math"

// layerGraph is the minimal read surface the shared beam search needs:
// a point's traversable neighbors at a level. The builder's in-progress
// state (filtered by the ready bitmap) and the immutable, converted
// Graph both satisfy it, so construction-time linking (§4.4) and
// query-time search (§4.8) share one implementation of the core
// "greedy descent + bounded beam" algorithm instead of diverging.
type layerGraph interface {
	ReadyNeighbors(p InternalId, level int) []InternalId
}

func (g *Graph) ReadyNeighbors(p InternalId, level int) []InternalId {
	return g.Neighbors(p, level)
}

// greedyDescend performs 1-beam greedy search from start, level by
// level from fromLevel down to toLevel inclusive, switching to a
// neighbor only when it strictly improves the score. No visited set is
// needed: a beam of width 1 cannot cycle on a well-formed graph. A
// start whose vector no longer resolves scores as -Inf, so any
// resolvable neighbor replaces it.
func greedyDescend(g layerGraph, vectors VectorSource, sim SimilarityFunc, query []float32, start InternalId, fromLevel, toLevel int) (InternalId, error) {
	current := start
	curScore := float32(math.Inf(-1))
	if curVec, err := vectors.Get(current); err == nil {
		curScore = sim(query, curVec)
	}

	for level := fromLevel; level >= toLevel; level-- {
		for {
			improved := false
			for _, n := range g.ReadyNeighbors(current, level) {
				nVec, err := vectors.Get(n)
				if err != nil {
					continue
				}
				s := sim(query, nVec)
				if s > curScore {
					current, curScore = n, s
					improved = true
				}
			}
			if !improved {
				break
			}
		}
	}
	return current, nil
}

// searchLayer runs the bounded beam search described in §4.4.3a and
// §4.8 step 4: expand the best unexplored candidate, scoring its
// neighbors, until no unexplored candidate can possibly improve the
// result set W. Returns W, capacity ef.
func searchLayer(g layerGraph, vectors VectorSource, sim SimilarityFunc, query []float32, entries []InternalId, level, ef int, visited *VisitedSet) (*BoundedQueue, error) {
	w := NewBoundedQueue(ef)
	candidates := NewBoundedQueue(1 << 30) // effectively unbounded frontier

	for _, e := range entries {
		if visited.Check(e) {
			continue
		}
		visited.Mark(e)
		vec, err := vectors.Get(e)
		if err != nil {
			// Not a result, but its neighbors are still expanded.
			candidates.PushScored(ScoredPoint{Id: e, Score: float32(math.Inf(-1))})
			continue
		}
		s := sim(query, vec)
		sp := ScoredPoint{Id: e, Score: s}
		w.PushScored(sp)
		candidates.PushScored(sp)
	}

	for candidates.Len() > 0 {
		c, _ := candidates.PopBest()
		if worst, ok := w.WorstScore(); ok && w.Full() && c.Score < worst {
			break
		}
		for _, n := range g.ReadyNeighbors(c.Id, level) {
			if visited.Check(n) {
				continue
			}
			visited.Mark(n)
			nVec, err := vectors.Get(n)
			if err != nil {
				continue
			}
			s := sim(query, nVec)
			if worst, ok := w.WorstScore(); !ok || !w.Full() || s > worst {
				sp := ScoredPoint{Id: n, Score: s}
				candidates.PushScored(sp)
				w.PushScored(sp)
			}
		}
	}

	return w, nil
}

// Search runs the full facade query described in §4.8 against an
// already-converted Graph: greedy descent from the best entry point
// down to level 1, then a bounded beam of width max(top, ef) at level
// 0, returning the top results by score.
func Search(g *Graph, vectors VectorSource, sim SimilarityFunc, pool *VisitedPool, entry EntryPoint, query []float32, top, ef int) ([]ScoredPoint, error) {
	if g.PointCount == 0 {
		return nil, nil
	}

	width := ef
	if top > width {
		width = top
	}

	current, err := greedyDescend(g, vectors, sim, query, entry.Id, entry.Level, 1)
	if err != nil {
		return nil, err
	}

	visited := pool.Acquire(g.PointCount)
	defer pool.Release(visited)

	w, err := searchLayer(g, vectors, sim, query, []InternalId{current}, 0, width, visited)
	if err != nil {
		return nil, err
	}

	sorted := w.SortedSlice()
	if top < len(sorted) {
		sorted = sorted[:top]
	}
	return sorted, nil
}
