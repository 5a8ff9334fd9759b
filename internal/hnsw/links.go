package hnsw

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// linkHeaderSize is the reserved header region; the 5 header fields occupy
// the first 40 bytes, the remaining 24 are padding to a round 64.
const linkHeaderSize = 64

// Graph is the in-memory adjacency structure: per point, a neighbor
// list for every level 0..MaxLevelOf(p). It is stored as flat slices
// rather than a pointer graph, per the design's "pointer graphs as
// flat arrays" note — this keeps conversion to the on-disk CSR format
// (below) a straight walk with no cyclic ownership to untangle.
type Graph struct {
	PointCount int
	levels     []uint8
	neighbors  [][][]InternalId
}

// NewGraph allocates a graph for pointCount points, all initially at
// level 0 with empty neighbor lists.
func NewGraph(pointCount int) *Graph {
	g := &Graph{
		PointCount: pointCount,
		levels:     make([]uint8, pointCount),
		neighbors:  make([][][]InternalId, pointCount),
	}
	for i := range g.neighbors {
		g.neighbors[i] = make([][]InternalId, 1)
	}
	return g
}

// MaxLevelOf returns p's assigned max level.
func (g *Graph) MaxLevelOf(p InternalId) int { return int(g.levels[p]) }

// SetMaxLevel fixes p's max level, growing its neighbor-list slice to
// match. Must be called before any SetNeighbors at a level > 0 for p.
func (g *Graph) SetMaxLevel(p InternalId, level int) {
	g.levels[p] = uint8(level)
	if len(g.neighbors[p]) < level+1 {
		grown := make([][]InternalId, level+1)
		copy(grown, g.neighbors[p])
		g.neighbors[p] = grown
	}
}

// GraphMaxLevel returns the highest level present in the graph, or -1
// if the graph has no points.
func (g *Graph) GraphMaxLevel() int {
	max := -1
	for _, l := range g.levels {
		if int(l) > max {
			max = int(l)
		}
	}
	return max
}

// Neighbors returns p's neighbor list at level, or nil if p has no
// presence at that level.
func (g *Graph) Neighbors(p InternalId, level int) []InternalId {
	if level > g.MaxLevelOf(p) {
		return nil
	}
	return g.neighbors[p][level]
}

// SetNeighbors replaces p's neighbor list at level.
func (g *Graph) SetNeighbors(p InternalId, level int, ns []InternalId) {
	g.neighbors[p][level] = ns
}

// AddPoint grows the graph by one point at level, with empty neighbor
// lists at every level 0..level, and returns its newly assigned id.
// Used by live single-point insertion (as opposed to the bulk Builder
// path, which pre-sizes every point up front).
func (g *Graph) AddPoint(level int) InternalId {
	id := InternalId(g.PointCount)
	g.levels = append(g.levels, uint8(level))
	g.neighbors = append(g.neighbors, make([][]InternalId, level+1))
	g.PointCount++
	return id
}

// linkHeader is the 5-field scalar header described by the on-disk
// format: point_count, levels_count, total_links_len,
// total_offsets_len, offsets_padding.
type linkHeader struct {
	PointCount      uint64
	LevelsCount     uint64
	TotalLinksLen   uint64
	TotalOffsetsLen uint64
	OffsetsPadding  uint64
}

// Serialize encodes g into the mmap-style CSR link blob specified by
// the design: a global offsets/links pair, level 0 addressed directly
// by point id and levels >= 1 addressed through a reindex permutation
// (points ranked by descending max level).
func Serialize(g *Graph) []byte {
	pointCount := g.PointCount
	maxLevel := g.GraphMaxLevel()
	levelsCount := maxLevel + 1
	if levelsCount < 1 {
		levelsCount = 1
	}

	order := make([]InternalId, pointCount)
	for i := range order {
		order[i] = InternalId(i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return g.MaxLevelOf(order[i]) > g.MaxLevelOf(order[j])
	})
	reindex := make([]uint32, pointCount)
	for rank, p := range order {
		reindex[p] = uint32(rank)
	}

	var links []uint32
	offsets := make([]uint64, 0, pointCount+1)
	levelOffsets := make([]uint64, levelsCount)
	var cumulative uint64

	levelOffsets[0] = uint64(len(offsets))
	offsets = append(offsets, cumulative)
	for p := 0; p < pointCount; p++ {
		ns := g.Neighbors(InternalId(p), 0)
		for _, n := range ns {
			links = append(links, n)
		}
		cumulative += uint64(len(ns))
		offsets = append(offsets, cumulative)
	}

	for level := 1; level <= maxLevel; level++ {
		levelOffsets[level] = uint64(len(offsets))
		offsets = append(offsets, cumulative)
		for _, p := range order {
			if g.MaxLevelOf(p) < level {
				break
			}
			ns := g.Neighbors(p, level)
			for _, n := range ns {
				links = append(links, n)
			}
			cumulative += uint64(len(ns))
			offsets = append(offsets, cumulative)
		}
	}

	hdr := linkHeader{
		PointCount:      uint64(pointCount),
		LevelsCount:     uint64(levelsCount),
		TotalLinksLen:   uint64(len(links)),
		TotalOffsetsLen: uint64(len(offsets)),
	}

	afterLinks := linkHeaderSize + len(levelOffsets)*8 + len(reindex)*4 + len(links)*4
	if afterLinks%8 != 0 {
		hdr.OffsetsPadding = 4
	}

	total := afterLinks + int(hdr.OffsetsPadding) + len(offsets)*8
	buf := make([]byte, total)

	binary.LittleEndian.PutUint64(buf[0:8], hdr.PointCount)
	binary.LittleEndian.PutUint64(buf[8:16], hdr.LevelsCount)
	binary.LittleEndian.PutUint64(buf[16:24], hdr.TotalLinksLen)
	binary.LittleEndian.PutUint64(buf[24:32], hdr.TotalOffsetsLen)
	binary.LittleEndian.PutUint64(buf[32:40], hdr.OffsetsPadding)

	off := linkHeaderSize
	for _, lo := range levelOffsets {
		binary.LittleEndian.PutUint64(buf[off:off+8], lo)
		off += 8
	}
	for _, r := range reindex {
		binary.LittleEndian.PutUint32(buf[off:off+4], r)
		off += 4
	}
	for _, l := range links {
		binary.LittleEndian.PutUint32(buf[off:off+4], l)
		off += 4
	}
	off += int(hdr.OffsetsPadding)
	for _, o := range offsets {
		binary.LittleEndian.PutUint64(buf[off:off+8], o)
		off += 8
	}

	return buf
}

// Deserialize parses a link blob produced by Serialize, validating
// every range before trusting it.
func Deserialize(data []byte) (*Graph, error) {
	if len(data) < linkHeaderSize {
		return nil, errors.New("hnsw: link blob shorter than header")
	}
	hdr := linkHeader{
		PointCount:      binary.LittleEndian.Uint64(data[0:8]),
		LevelsCount:     binary.LittleEndian.Uint64(data[8:16]),
		TotalLinksLen:   binary.LittleEndian.Uint64(data[16:24]),
		TotalOffsetsLen: binary.LittleEndian.Uint64(data[24:32]),
		OffsetsPadding:  binary.LittleEndian.Uint64(data[32:40]),
	}
	if hdr.OffsetsPadding != 0 && hdr.OffsetsPadding != 4 {
		return nil, errors.Errorf("hnsw: invalid offsets padding %d", hdr.OffsetsPadding)
	}

	pointCount := int(hdr.PointCount)
	levelsCount := int(hdr.LevelsCount)

	off := linkHeaderSize
	need := func(n int) error {
		if off+n > len(data) {
			return errors.New("hnsw: link blob truncated")
		}
		return nil
	}

	if err := need(levelsCount * 8); err != nil {
		return nil, err
	}
	levelOffsets := make([]uint64, levelsCount)
	for i := range levelOffsets {
		levelOffsets[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}

	if err := need(pointCount * 4); err != nil {
		return nil, err
	}
	reindex := make([]uint32, pointCount)
	for i := range reindex {
		reindex[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}

	if err := need(int(hdr.TotalLinksLen) * 4); err != nil {
		return nil, err
	}
	links := make([]uint32, hdr.TotalLinksLen)
	for i := range links {
		links[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}

	off += int(hdr.OffsetsPadding)
	if err := need(int(hdr.TotalOffsetsLen) * 8); err != nil {
		return nil, err
	}
	offsets := make([]uint64, hdr.TotalOffsetsLen)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}

	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, errors.New("hnsw: offsets array is not non-decreasing")
		}
	}
	if len(offsets) > 0 && offsets[len(offsets)-1] != hdr.TotalLinksLen {
		return nil, errors.New("hnsw: final offset does not match total link count")
	}

	// Recover each point's max level: it is the largest ℓ such that p
	// appears in level ℓ's reindex-addressed range.
	ranks := make([]int, pointCount)
	for p, r := range reindex {
		ranks[p] = int(r)
	}
	maxLevels := make([]uint8, pointCount)
	for level := 1; level < levelsCount; level++ {
		start := levelOffsets[level]
		end := uint64(hdr.TotalOffsetsLen)
		if level+1 < levelsCount {
			end = levelOffsets[level+1]
		}
		count := int(end-start) - 1
		if count < 0 {
			return nil, errors.Errorf("hnsw: level %d has negative extent", level)
		}
		for p := range maxLevels {
			if ranks[p] < count {
				maxLevels[p] = uint8(level)
			}
		}
	}

	g := &Graph{PointCount: pointCount, levels: maxLevels, neighbors: make([][][]InternalId, pointCount)}
	for p := range g.neighbors {
		g.neighbors[p] = make([][]InternalId, int(maxLevels[p])+1)
	}

	// Level 0: direct addressing by point id.
	for p := 0; p < pointCount; p++ {
		start, end := offsets[p], offsets[p+1]
		if end > hdr.TotalLinksLen || start > end {
			return nil, errors.Errorf("hnsw: level 0 range out of bounds for point %d", p)
		}
		g.neighbors[p][0] = append([]InternalId(nil), links[start:end]...)
	}

	// Levels >= 1: addressed through reindex within each level's range.
	for level := 1; level < levelsCount; level++ {
		base := levelOffsets[level]
		for p := 0; p < pointCount; p++ {
			if int(maxLevels[p]) < level {
				continue
			}
			idx := base + uint64(ranks[p])
			if idx+1 >= uint64(len(offsets)) {
				return nil, errors.Errorf("hnsw: level %d offset index out of bounds for point %d", level, p)
			}
			start, end := offsets[idx], offsets[idx+1]
			if end > hdr.TotalLinksLen || start > end {
				return nil, errors.Errorf("hnsw: level %d range out of bounds for point %d", level, p)
			}
			g.neighbors[p][level] = append([]InternalId(nil), links[start:end]...)
		}
	}

	return g, nil
}
