package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/kordocs/reggest/internal/doctree"
)

// Process runs the whole chunking pipeline on one decoded document: parse,
// plan, attach paths, resolve tables, assemble. It is the only entry point
// the hosting pipeline needs; the stage functions are exported for tests
// and tooling.
func Process(docID, title, raw string, anchors []doctree.TableAnchor, band SizeBand) (*doctree.ProcessedDocument, error) {
	tree, err := Parse(raw, anchors)
	if err != nil {
		return nil, err
	}
	registry, err := BuildRegistry(tree)
	if err != nil {
		return nil, err
	}
	cands, err := Plan(tree, band)
	if err != nil {
		return nil, err
	}
	AttachPaths(tree, cands)
	if err := Resolve(tree, cands, registry); err != nil {
		return nil, err
	}
	return Assemble(docID, title, tree, cands, registry, band)
}

// Assemble numbers the candidates, derives stable chunk ids from the
// document id and position, validates the assembly invariants, and builds
// the immutable ProcessedDocument. Assembly is all-or-nothing: a broken
// invariant returns an error and no document.
func Assemble(docID, title string, tree *doctree.Tree, cands []Candidate, registry []doctree.TableRecord, band SizeBand) (*doctree.ProcessedDocument, error) {
	if err := validateCoverage(tree, cands, band); err != nil {
		return nil, err
	}
	if err := validatePathOrder(cands); err != nil {
		return nil, err
	}
	if err := validateTables(cands, registry); err != nil {
		return nil, err
	}

	doc := &doctree.ProcessedDocument{
		DocID:  docID,
		Title:  title,
		Tables: registry,
	}
	total := len(cands)
	for i, c := range cands {
		doc.Chunks = append(doc.Chunks, doctree.Chunk{
			ChunkID:   fmt.Sprintf("%s_c%04d", docID, i+1),
			DocID:     docID,
			Index:     i + 1,
			Total:     total,
			Text:      c.Text,
			CharCount: utf8.RuneCountInString(c.Text),
			Path:      c.Path,
			Nodes:     c.Nodes,
			Start:     c.Start,
			End:       c.End,
			TableIDs:  c.TableIDs,
			SizeFlag:  c.SizeFlag,
			Strategy:  c.Strategy,
		})
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.Origin != doctree.OriginExplicit {
			continue
		}
		switch n.Kind {
		case doctree.KindChapter:
			doc.Chapters++
		case doctree.KindArticle:
			doc.Articles++
		}
	}
	return doc, nil
}

// validateCoverage checks the partition property: candidate spans tile the
// source text from start to end, with duplication only where a sliding
// window allows it and never more than OverlapChars.
func validateCoverage(tree *doctree.Tree, cands []Candidate, band SizeBand) error {
	if len(cands) == 0 {
		return &ValidationError{Invariant: InvariantCoverage, Reason: "no chunks produced"}
	}
	if first := cands[0]; first.Start != 0 {
		return &ValidationError{
			Invariant: InvariantCoverage, Index: 0, Start: first.Start, End: first.End,
			Reason: "first chunk does not start at document start",
		}
	}
	if last := cands[len(cands)-1]; last.End != len(tree.Source) {
		return &ValidationError{
			Invariant: InvariantCoverage, Index: len(cands) - 1, Start: last.Start, End: last.End,
			Reason: "last chunk does not reach document end",
		}
	}
	for i := 1; i < len(cands); i++ {
		prev, cur := cands[i-1], cands[i]
		if cur.Start > prev.End {
			return &ValidationError{
				Invariant: InvariantCoverage, Index: i, Start: cur.Start, End: cur.End,
				Reason: fmt.Sprintf("gap of %d bytes after previous chunk", cur.Start-prev.End),
			}
		}
		if !cur.Windowed && cur.Start != prev.End {
			return &ValidationError{
				Invariant: InvariantCoverage, Index: i, Start: cur.Start, End: cur.End,
				Reason: "non-window chunk overlaps its predecessor",
			}
		}
		if dup := utf8.RuneCountInString(tree.Source[cur.Start:prev.End]); cur.Windowed && dup > band.OverlapChars {
			return &ValidationError{
				Invariant: InvariantCoverage, Index: i, Start: cur.Start, End: cur.End,
				Reason: fmt.Sprintf("overlap of %d runes exceeds budget %d", dup, band.OverlapChars),
			}
		}
	}
	return nil
}

// validatePathOrder checks that chunks keep document order: byte spans and
// node ranges never move backwards.
func validatePathOrder(cands []Candidate) error {
	for i := 1; i < len(cands); i++ {
		prev, cur := cands[i-1], cands[i]
		if cur.Start < prev.Start || cur.Nodes.Start < prev.Nodes.Start {
			return &ValidationError{
				Invariant: InvariantPathOrder, Index: i, Start: cur.Start, End: cur.End,
				Reason: "chunk precedes its predecessor in document order",
			}
		}
	}
	return nil
}

// validateTables checks that every referenced table id resolves to exactly
// one registry entry and is referenced by exactly one chunk.
func validateTables(cands []Candidate, registry []doctree.TableRecord) error {
	reg := make(map[string]bool, len(registry))
	for i := range registry {
		reg[registry[i].TableID] = true
	}
	seen := make(map[string]int)
	for i := range cands {
		inChunk := make(map[string]bool, len(cands[i].TableIDs))
		for _, id := range cands[i].TableIDs {
			if !reg[id] {
				return &TableReferenceError{TableID: id, Reason: "referenced but not in registry"}
			}
			if inChunk[id] {
				return &TableReferenceError{TableID: id, Reason: "referenced twice by one chunk"}
			}
			inChunk[id] = true
			if prev, ok := seen[id]; ok {
				return &TableReferenceError{
					TableID: id,
					Reason:  fmt.Sprintf("referenced by chunks %d and %d", prev, i),
				}
			}
			seen[id] = i
		}
	}
	return nil
}
