package chunker

import (
	"sort"
	"strings"

	"github.com/kordocs/reggest/internal/doctree"
)

// Parse builds the structure tree for a decoded document using the default
// Korean regulation marker rules. See ParseWithRules.
func Parse(raw string, anchors []doctree.TableAnchor) (*doctree.Tree, error) {
	return ParseWithRules(raw, anchors, DefaultRules())
}

// ParseWithRules scans the text once, line by line, keeping a stack of open
// nodes from the root down to the deepest open level. A marker of level L
// closes every open node at level >= L and opens a new node under the
// surviving top. Text between markers belongs to the innermost open node.
// Table anchors are bound to whichever node spans their offset.
//
// Irregular input degrades instead of failing: numbering gaps and repeats
// are taken in encounter order, a paragraph or item arriving before any
// article gets a synthesized article parent, and a document with no markers
// at all comes back as a single flat node with the tree flagged
// Unstructured. Only offsets that cannot be reconciled with the text raise
// a StructureParseError.
func ParseWithRules(raw string, anchors []doctree.TableAnchor, rules []Rule) (*doctree.Tree, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &EmptyDocumentError{}
	}

	t := doctree.NewTree(raw)
	stack := []doctree.NodeID{t.Root}
	markers := 0

	pos := 0
	for pos < len(raw) {
		lineEnd := strings.IndexByte(raw[pos:], '\n')
		if lineEnd < 0 {
			lineEnd = len(raw)
		} else {
			lineEnd += pos
		}
		line := strings.TrimRight(raw[pos:lineEnd], " \t\r")
		trimmed := strings.TrimLeft(line, " \t")
		for _, r := range rules {
			m, ok := r.Match(trimmed)
			if !ok {
				continue
			}
			markers++
			closeOpen(t, &stack, m.Kind, pos)
			openNode(t, &stack, m, pos)
			break
		}
		pos = lineEnd + 1
	}

	closeAll(t, &stack, len(raw))
	root := t.Node(t.Root)
	root.End = len(raw)
	if len(root.Children) == 0 {
		root.Text = raw
	}
	t.Unstructured = markers == 0

	if err := attachAnchors(t, anchors); err != nil {
		return nil, err
	}
	return t, nil
}

// closeOpen finalizes every open node at the given level or deeper.
// The root is never closed.
func closeOpen(t *doctree.Tree, stack *[]doctree.NodeID, kind doctree.NodeKind, at int) {
	s := *stack
	for len(s) > 1 && t.Node(s[len(s)-1]).Kind >= kind {
		n := t.Node(s[len(s)-1])
		n.End = at
		if len(n.Children) == 0 && n.Text == "" {
			n.Text = t.Source[n.Start:at]
		}
		s = s[:len(s)-1]
	}
	*stack = s
}

// closeAll finalizes every open node except the root.
func closeAll(t *doctree.Tree, stack *[]doctree.NodeID, at int) {
	closeOpen(t, stack, doctree.KindChapter, at)
}

// openNode pushes a new node for the matched marker under the current top
// of stack, synthesizing an article placeholder when a paragraph or item
// arrives with no article open.
func openNode(t *doctree.Tree, stack *[]doctree.NodeID, m Match, at int) {
	if m.Kind >= doctree.KindParagraph && t.Node(top(*stack)).Kind < doctree.KindArticle {
		pushChild(t, stack, doctree.StructureNode{
			Kind:   doctree.KindArticle,
			Origin: doctree.OriginSynthesized,
			Start:  at,
		})
	}
	pushChild(t, stack, doctree.StructureNode{
		Kind:    m.Kind,
		Origin:  doctree.OriginExplicit,
		Heading: m.Heading,
		Number:  m.Number,
		Title:   m.Title,
		Start:   at,
	})
}

// pushChild finalizes the parent's local text span if this is its first
// child, then adds the node to the arena and the stack.
func pushChild(t *doctree.Tree, stack *[]doctree.NodeID, n doctree.StructureNode) doctree.NodeID {
	parent := top(*stack)
	p := t.Node(parent)
	if len(p.Children) == 0 && p.Text == "" {
		p.Text = t.Source[p.Start:n.Start]
	}
	n.Parent = parent
	id := t.Add(n)
	*stack = append(*stack, id)
	return id
}

func top(stack []doctree.NodeID) doctree.NodeID {
	return stack[len(stack)-1]
}

// attachAnchors binds each table anchor to the deepest node spanning its
// offset. Offsets outside the text or overlapping table bodies are
// unrecoverable decoder corruption.
func attachAnchors(t *doctree.Tree, anchors []doctree.TableAnchor) error {
	if len(anchors) == 0 {
		return nil
	}
	sorted := make([]doctree.TableAnchor, len(anchors))
	copy(sorted, anchors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	prevEnd := -1
	for _, a := range sorted {
		if a.Offset < 0 || a.Length < 0 || a.Offset+a.Length > len(t.Source) {
			return &StructureParseError{
				Offset: a.Offset,
				Reason: "table anchor span outside document text",
			}
		}
		if a.Offset < prevEnd {
			return &StructureParseError{
				Offset: a.Offset,
				Reason: "table anchor overlaps preceding table body",
			}
		}
		prevEnd = a.Offset + a.Length
		t.Tables = append(t.Tables, doctree.AnchoredTable{
			TableAnchor: a,
			Owner:       nodeAt(t, a.Offset),
		})
	}
	return nil
}

// nodeAt returns the deepest node whose span contains the offset.
func nodeAt(t *doctree.Tree, off int) doctree.NodeID {
	id := t.Root
	for {
		n := t.Node(id)
		next := doctree.NoNode
		for _, c := range n.Children {
			cn := t.Node(c)
			if cn.Start <= off && off < cn.End {
				next = c
				break
			}
		}
		if next == doctree.NoNode {
			return id
		}
		id = next
	}
}
