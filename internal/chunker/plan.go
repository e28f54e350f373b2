package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/kordocs/reggest/internal/doctree"
)

// SizeBand is the target range for chunk text length, in runes.
// OverlapChars governs duplication at forced split points only; no other
// path introduces overlap.
type SizeBand struct {
	MinChars     int
	MaxChars     int
	OverlapChars int
}

// DefaultSizeBand returns the production defaults for regulation documents.
func DefaultSizeBand() SizeBand {
	return SizeBand{MinChars: 200, MaxChars: 800, OverlapChars: 150}
}

// Validate checks the band's internal consistency.
func (b SizeBand) Validate() error {
	switch {
	case b.MinChars <= 0:
		return fmt.Errorf("min_chars must be positive, got %d", b.MinChars)
	case b.MaxChars <= b.MinChars:
		return fmt.Errorf("max_chars %d must exceed min_chars %d", b.MaxChars, b.MinChars)
	case b.OverlapChars < 0 || b.OverlapChars >= b.MaxChars:
		return fmt.Errorf("overlap_chars %d must be in [0, max_chars)", b.OverlapChars)
	}
	return nil
}

// Candidate is a planned chunk before identity assignment: a node range and
// its byte span in the source, plus working metadata filled in by the path
// builder and the table resolver.
type Candidate struct {
	Nodes    doctree.NodeRange
	Start    int // byte offsets into the source text
	End      int
	Text     string
	Strategy string
	SizeFlag doctree.SizeFlag
	Windowed bool // sliding-window output; may duplicate OverlapChars of its predecessor
	TableIDs []string
	Path     doctree.HierarchyPath
}

// Plan turns the structure tree into ordered chunk candidates honoring the
// size band. Articles are the planning unit: an article that fits the band
// becomes one chunk, an oversized article splits along its paragraph and
// item boundaries, and an undersized article merges forward with its
// siblings under the same chapter. Candidate spans tile the source text, so
// chapter headings and preamble ride along with the unit that follows them.
//
// The result is a pure function of the tree and the band; candidates come
// out in final document order.
func Plan(tree *doctree.Tree, band SizeBand) ([]Candidate, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}

	var cands []Candidate
	if tree.Unstructured {
		root := doctree.NodeRange{Start: tree.Root, End: tree.Root}
		cands = packSpans(tree, band, root, paragraphSpans(tree.Source), doctree.StrategyGeneral)
	} else {
		cands = planUnits(tree, band)
	}
	for i := range cands {
		cands[i].Text = tree.Source[cands[i].Start:cands[i].End]
	}
	return cands, nil
}

// planUnits walks article-level units in document order, merging small ones
// forward and splitting large ones.
func planUnits(tree *doctree.Tree, band SizeBand) []Candidate {
	units := planningUnits(tree)
	var cands []Candidate
	cur := 0
	i := 0
	for i < len(units) {
		j := i
		end := tree.Node(units[j]).End
		for effectiveRunes(tree, cur, end) < band.MinChars &&
			j+1 < len(units) &&
			tree.Node(units[j+1]).Parent == tree.Node(units[i]).Parent &&
			tree.Node(units[j+1]).Kind == tree.Node(units[i]).Kind {
			j++
			end = tree.Node(units[j]).End
		}
		length := effectiveRunes(tree, cur, end)
		r := doctree.NodeRange{Start: units[i], End: units[j]}
		if length <= band.MaxChars {
			flag := doctree.SizeOK
			if length < band.MinChars {
				flag = doctree.SizeUnderMin
			}
			cands = append(cands, Candidate{
				Nodes:    r,
				Start:    cur,
				End:      end,
				Strategy: doctree.StrategyStructure,
				SizeFlag: flag,
			})
		} else {
			cands = append(cands, packSpans(tree, band, r, unitSpans(tree, cur, end, units[i:j+1]), doctree.StrategyStructure)...)
		}
		cur = end
		i = j + 1
	}
	return cands
}

// planningUnits lists the nodes the planner iterates over: every article
// (explicit or synthesized), plus any chapter with no children so its text
// is not orphaned.
func planningUnits(tree *doctree.Tree) []doctree.NodeID {
	var units []doctree.NodeID
	tree.Walk(tree.Root, func(id doctree.NodeID, n *doctree.StructureNode) bool {
		switch n.Kind {
		case doctree.KindArticle:
			units = append(units, id)
			return false
		case doctree.KindChapter:
			if len(n.Children) == 0 {
				units = append(units, id)
			}
		}
		return true
	})
	return units
}

// unitSpans cuts the tiled span [start, end) of a unit group at every child
// boundary, producing the segments the greedy packer works with.
func unitSpans(tree *doctree.Tree, start, end int, units []doctree.NodeID) [][2]int {
	var bounds []int
	for k, u := range units {
		un := tree.Node(u)
		if k > 0 {
			bounds = append(bounds, un.Start)
		}
		for _, c := range un.Children {
			bounds = append(bounds, tree.Node(c).Start)
		}
	}
	var spans [][2]int
	s := start
	for _, b := range bounds {
		if b <= s || b >= end {
			continue
		}
		spans = append(spans, [2]int{s, b})
		s = b
	}
	spans = append(spans, [2]int{s, end})
	return spans
}

// paragraphSpans tiles the whole source at blank-line boundaries; the
// fallback segmentation for documents without structural markers.
func paragraphSpans(s string) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\n' && s[i+1] == '\n' {
			j := i + 1
			for j < len(s) && s[j] == '\n' {
				j++
			}
			spans = append(spans, [2]int{start, j})
			start = j
			i = j - 1
		}
	}
	if start < len(s) {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

// packSpans greedily accumulates segments into candidates of at most
// MaxChars. A single segment over MaxChars falls back to a sliding window.
func packSpans(tree *doctree.Tree, band SizeBand, r doctree.NodeRange, spans [][2]int, strategy string) []Candidate {
	var out []Candidate
	accStart, accEnd, accLen := -1, -1, 0
	emit := func() {
		if accStart < 0 {
			return
		}
		flag := doctree.SizeOK
		if accLen < band.MinChars {
			flag = doctree.SizeUnderMin
		}
		out = append(out, Candidate{
			Nodes:    r,
			Start:    accStart,
			End:      accEnd,
			Strategy: strategy,
			SizeFlag: flag,
		})
		accStart, accEnd, accLen = -1, -1, 0
	}
	for _, sp := range spans {
		segLen := effectiveRunes(tree, sp[0], sp[1])
		if segLen > band.MaxChars {
			emit()
			out = append(out, windows(tree, band, r, sp[0], sp[1], strategy)...)
			continue
		}
		if accStart >= 0 && accLen+segLen > band.MaxChars {
			emit()
		}
		if accStart < 0 {
			accStart = sp[0]
		}
		accEnd = sp[1]
		accLen += segLen
	}
	emit()
	return out
}

// windows slides a fixed-width window over an atomic segment that exceeds
// MaxChars: width MaxChars, stride MaxChars-OverlapChars, remainder kept as
// the final window. This is the only place chunk overlap is introduced.
func windows(tree *doctree.Tree, band SizeBand, r doctree.NodeRange, s, e int, strategy string) []Candidate {
	idx := runeIndex(tree.Source[s:e])
	n := len(idx) - 1
	stride := band.MaxChars - band.OverlapChars
	var out []Candidate
	for rs := 0; rs < n; rs += stride {
		re := rs + band.MaxChars
		last := re >= n
		if last {
			re = n
		}
		ws, we := s+idx[rs], s+idx[re]
		length := effectiveRunes(tree, ws, we)
		flag := doctree.SizeOK
		switch {
		case length > band.MaxChars:
			flag = doctree.SizeOverMax
		case length < band.MinChars:
			flag = doctree.SizeUnderMin
		}
		out = append(out, Candidate{
			Nodes:    r,
			Start:    ws,
			End:      we,
			Strategy: strategy,
			SizeFlag: flag,
			Windowed: rs > 0,
		})
		if last {
			break
		}
	}
	return out
}

// effectiveRunes is the rune length the span will have as chunk text once
// table bodies are swapped for their captions.
func effectiveRunes(t *doctree.Tree, s, e int) int {
	n := utf8.RuneCountInString(t.Source[s:e])
	for i := range t.Tables {
		a := &t.Tables[i]
		bs, be := a.Offset, a.Offset+a.Length
		if be <= s || bs >= e {
			continue
		}
		n -= utf8.RuneCountInString(t.Source[max(bs, s):min(be, e)])
		if bs >= s {
			n += utf8.RuneCountInString(a.Caption)
		}
	}
	return n
}

// runeIndex returns the byte offset of every rune boundary in s, including
// the trailing len(s).
func runeIndex(s string) []int {
	idx := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		idx = append(idx, i)
	}
	idx = append(idx, len(s))
	return idx
}
