package chunker

import (
	"strings"

	"github.com/kordocs/reggest/internal/doctree"
)

// AttachPaths fills each candidate's hierarchy path from its node range.
func AttachPaths(tree *doctree.Tree, cands []Candidate) {
	for i := range cands {
		cands[i].Path = BuildPath(tree, cands[i].Nodes)
	}
}

// BuildPath derives the hierarchy path for a node range: the ancestor chain
// of the range's start node, with the deepest level rendered as a range
// ("제7조–제8조") when the end node differs. Levels the document does not
// have, and synthesized placeholders, are omitted rather than rendered
// empty.
func BuildPath(tree *doctree.Tree, r doctree.NodeRange) doctree.HierarchyPath {
	startChain := chain(tree, r.Start)
	endChain := startChain
	if r.End != r.Start {
		endChain = chain(tree, r.End)
	}

	var levels []doctree.PathLevel
	var segs []string
	for i, id := range startChain {
		n := tree.Node(id)
		lv := doctree.PathLevel{
			Kind:    n.Kind,
			Number:  n.Number,
			Title:   n.Title,
			Heading: n.Heading,
		}
		if i < len(endChain) && endChain[i] != id {
			en := tree.Node(endChain[i])
			lv.EndNumber = en.Number
			lv.EndHeading = en.Heading
			levels = append(levels, lv)
			segs = append(segs, n.Heading+"–"+en.Heading)
			break
		}
		levels = append(levels, lv)
		segs = append(segs, segment(n))
	}
	return doctree.HierarchyPath{
		Rendered: strings.Join(segs, " > "),
		Levels:   levels,
	}
}

// chain returns the ancestors of id from the top down, excluding the root
// and synthesized placeholders.
func chain(tree *doctree.Tree, id doctree.NodeID) []doctree.NodeID {
	var ids []doctree.NodeID
	for cur := id; cur != doctree.NoNode; cur = tree.Node(cur).Parent {
		n := tree.Node(cur)
		if n.Kind == doctree.KindRoot || n.Origin == doctree.OriginSynthesized {
			continue
		}
		ids = append(ids, cur)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

// segment renders one path level the way the marker was written:
// "제3장 급여 및 수당", "제15조 (급여의 계산)", "①".
func segment(n *doctree.StructureNode) string {
	switch {
	case n.Kind == doctree.KindChapter && n.Title != "":
		return n.Heading + " " + n.Title
	case n.Kind == doctree.KindArticle && n.Title != "":
		return n.Heading + " (" + n.Title + ")"
	default:
		return n.Heading
	}
}
