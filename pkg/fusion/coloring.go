// Package fusion implements the Coloring pass: grouping chunks into color
// classes (future subtasks) under the fusion rules in spec §4.1 step 3 —
// same band, no virtual-operand boundary crossing, uniform affinity, and at
// most one shuffle mapper per class under FETCH_BY_INDEX.
//
// The upstream project's own `fusion.py` was not part of the grounding
// material retrieved for this spec (only `analyzer.py` was); this package's
// greedy coloring pass (in topological order, each chunk joins the first
// compatible predecessor's class) is an original design satisfying the rules
// analyzer.py's call sites and spec.md §4.1 describe, not a transliteration
// of a specific source file.
package fusion

import (
	"fmt"
	"sort"

	"github.com/xorbits-io/xorbits/pkg/band"
	"github.com/xorbits-io/xorbits/pkg/chunk"
)

// colorMeta tracks the invariants a color class must keep true as chunks
// join it.
type colorMeta struct {
	id            int
	band          band.Band
	hasBand       bool
	affinity      *band.Band
	hasVirtual    bool
	shuffleMapper bool
	size          int
}

// Coloring assigns a color (future subtask id) to every non-fetch chunk in
// a graph.
type Coloring struct {
	graph    *chunk.Graph
	chunkToBand map[chunk.Key]band.Band
	// maxColorSize caps how many chunks may share a color, per the
	// "per-band initial same-color budgets" analyzer.py passes in;
	// 0 means unlimited.
	maxColorSize int
	fetchByIndex bool

	colorOf map[chunk.Key]int
	colors  map[int]*colorMeta
	next    int
}

// New builds a Coloring pass. chunkToBand must already carry the band
// assignment for every chunk (as produced by the Assigner). maxColorSize
// of 0 means no per-color size cap. fetchByIndex enables the "at most one
// shuffle mapper per color" rule inline (the analyzer additionally runs an
// explicit post-pass, §4.1 step 4, to peel apart any that still slipped
// through after shuffle-proxy chunks are discovered).
func New(g *chunk.Graph, chunkToBand map[chunk.Key]band.Band, maxColorSize int, fetchByIndex bool) *Coloring {
	return &Coloring{
		graph:        g,
		chunkToBand:  chunkToBand,
		maxColorSize: maxColorSize,
		fetchByIndex: fetchByIndex,
		colorOf:      make(map[chunk.Key]int),
		colors:       make(map[int]*colorMeta),
	}
}

// NextColor allocates and returns a fresh, otherwise-unused color id. Used
// by the analyzer's shuffle pre-split step to peel a mapper chunk into its
// own class after the fact.
func (c *Coloring) NextColor() int {
	c.next++
	return c.next
}

// Color runs the coloring pass and returns the per-chunk color assignment.
// Fetch chunks never appear in the result.
func (c *Coloring) Color() (map[chunk.Key]int, error) {
	order, err := c.graph.TopologicalIter()
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}

	for _, ch := range order {
		if chunk.IsFetch(ch.Op) {
			continue
		}
		b, hasBand := c.chunkToBand[ch.Key]

		joined := false
		for _, pred := range sortedPreds(c.graph, ch) {
			if chunk.IsFetch(pred.Op) {
				continue
			}
			predColor, ok := c.colorOf[pred.Key]
			if !ok {
				continue
			}
			meta := c.colors[predColor]
			if c.canJoin(meta, ch, b, hasBand) {
				c.join(meta, ch)
				joined = true
				break
			}
		}
		if !joined {
			c.newColor(ch, b, hasBand)
		}
	}
	return c.colorOf, nil
}

func (c *Coloring) canJoin(meta *colorMeta, ch *chunk.Chunk, b band.Band, hasBand bool) bool {
	if c.maxColorSize > 0 && meta.size >= c.maxColorSize {
		return false
	}
	if hasBand && meta.hasBand && meta.band.Key() != b.Key() {
		return false
	}
	if chunk.IsVirtual(ch.Op) && meta.hasVirtual {
		return false
	}
	if eb := ch.Op.ExpectBand(); eb != nil {
		if meta.affinity != nil && meta.affinity.Key() != eb.Key() {
			return false
		}
	}
	if c.fetchByIndex && chunk.IsShuffleMapper(ch.Op) && meta.shuffleMapper {
		return false
	}
	return true
}

func (c *Coloring) join(meta *colorMeta, ch *chunk.Chunk) {
	c.colorOf[ch.Key] = meta.id
	meta.size++
	if chunk.IsVirtual(ch.Op) {
		meta.hasVirtual = true
	}
	if chunk.IsShuffleMapper(ch.Op) {
		meta.shuffleMapper = true
	}
	if eb := ch.Op.ExpectBand(); eb != nil && meta.affinity == nil {
		meta.affinity = eb
	}
}

func (c *Coloring) newColor(ch *chunk.Chunk, b band.Band, hasBand bool) {
	id := c.NextColor()
	meta := &colorMeta{id: id, band: b, hasBand: hasBand, size: 1}
	if chunk.IsVirtual(ch.Op) {
		meta.hasVirtual = true
	}
	if chunk.IsShuffleMapper(ch.Op) {
		meta.shuffleMapper = true
	}
	meta.affinity = ch.Op.ExpectBand()
	c.colors[id] = meta
	c.colorOf[ch.Key] = id
}

// Reassign moves chunk ch into color newID, used by the analyzer's post-
// coloring shuffle-mapper split (§4.1 step 4). It is the caller's
// responsibility to have obtained newID via NextColor.
func (c *Coloring) Reassign(ch *chunk.Chunk, newID int, b band.Band) {
	if old, ok := c.colorOf[ch.Key]; ok {
		if meta, ok := c.colors[old]; ok {
			meta.size--
		}
	}
	c.colorOf[ch.Key] = newID
	c.colors[newID] = &colorMeta{id: newID, band: b, hasBand: true, size: 1}
}

// ColorOf returns the color assigned to ch, if any.
func (c *Coloring) ColorOf(ch *chunk.Chunk) (int, bool) {
	id, ok := c.colorOf[ch.Key]
	return id, ok
}

// CheckBudget re-validates every color class's size against maxColorSize,
// returning an error naming the first class that exceeds it. Intended to
// be called after any post-coloring split (§9 open question: splitting a
// shuffle-mapper color class can change the resulting per-band counts, and
// the original source does not re-verify budgets after doing so).
func (c *Coloring) CheckBudget() error {
	if c.maxColorSize <= 0 {
		return nil
	}
	for id, meta := range c.colors {
		if meta.size > c.maxColorSize {
			return fmt.Errorf("fusion: color %d on band %s exceeds budget (%d > %d)", id, meta.band, meta.size, c.maxColorSize)
		}
	}
	return nil
}

func sortedPreds(g *chunk.Graph, ch *chunk.Chunk) []*chunk.Chunk {
	preds := append([]*chunk.Chunk(nil), g.Predecessors(ch)...)
	sort.Slice(preds, func(i, j int) bool { return preds[i].Key < preds[j].Key })
	return preds
}
