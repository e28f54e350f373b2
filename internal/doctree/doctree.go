// Package doctree defines the document structure model shared by the
// decoding, chunking, and storage layers: an arena-backed hierarchy tree,
// table records, and the assembled chunk output.
package doctree

import "fmt"

// NodeKind is a structural level in a regulation-style document, ordered
// from coarsest to finest. The numeric order doubles as nesting depth.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindChapter
	KindArticle
	KindParagraph
	KindItem
)

// String returns the level name used in logs and stored metadata.
func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindChapter:
		return "chapter"
	case KindArticle:
		return "article"
	case KindParagraph:
		return "paragraph"
	case KindItem:
		return "item"
	default:
		return "unknown"
	}
}

// NodeOrigin distinguishes nodes parsed from a real marker from placeholder
// nodes synthesized to keep the hierarchy well-formed.
type NodeOrigin int

const (
	OriginExplicit NodeOrigin = iota
	OriginSynthesized
)

// NodeID indexes a node within its document's arena. Nodes are allocated
// in document order, so NodeID comparison follows document position.
type NodeID int

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// StructureNode is one level of the parsed hierarchy. Nodes do not own
// their children directly; parent and child links are arena indices.
type StructureNode struct {
	Kind     NodeKind
	Origin   NodeOrigin
	Heading  string // marker as written in the source, e.g. "제15조", "①"
	Number   string // normalized marker number, e.g. "15"; as written, gaps allowed
	Title    string // optional marker title, e.g. "급여의 계산"
	Text     string // node-local content (marker line included), excluding children
	Start    int    // byte offset of the node's span in the source text
	End      int    // byte offset one past the span
	Parent   NodeID
	Children []NodeID
}

// Tree is a per-document arena of structure nodes.
type Tree struct {
	Nodes        []StructureNode
	Root         NodeID
	Source       string          // full decoded text the offsets index into
	Tables       []AnchoredTable // anchors bound to owning nodes, document order
	Unstructured bool            // no markers found; planner uses paragraph fallback
}

// NewTree allocates a tree with a root node spanning the whole source.
func NewTree(source string) *Tree {
	t := &Tree{Source: source, Root: 0}
	t.Nodes = append(t.Nodes, StructureNode{
		Kind:   KindRoot,
		Parent: NoNode,
		Start:  0,
		End:    len(source),
	})
	return t
}

// Add appends a node to the arena and links it under parent.
// Returns the new node's id.
func (t *Tree) Add(n StructureNode) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, n)
	if n.Parent != NoNode {
		p := &t.Nodes[n.Parent]
		p.Children = append(p.Children, id)
	}
	return id
}

// Node returns a pointer to the node with the given id.
func (t *Tree) Node(id NodeID) *StructureNode {
	return &t.Nodes[id]
}

// Walk visits nodes depth-first in document order, starting at id. The
// callback's return controls whether the node's children are visited.
func (t *Tree) Walk(id NodeID, fn func(NodeID, *StructureNode) bool) {
	n := t.Node(id)
	if !fn(id, n) {
		return
	}
	for _, c := range n.Children {
		t.Walk(c, fn)
	}
}

// NodeRange identifies a contiguous run of nodes covered by one chunk.
// Start and End are equal for single-node chunks.
type NodeRange struct {
	Start NodeID
	End   NodeID
}

// TableAnchor is the decoder's record of a table encountered in the text
// stream. The body occupies [Offset, Offset+Length) in the decoded text.
type TableAnchor struct {
	TableID string
	Offset  int
	Length  int
	Grid    [][]string
	Caption string
}

// AnchoredTable is a table anchor bound to the node open at its offset.
type AnchoredTable struct {
	TableAnchor
	Owner NodeID
}

// TableRecord is a registered table with its owning structure node and
// pre-rendered forms for answer-time display.
type TableRecord struct {
	TableID  string
	Owner    NodeID
	Grid     [][]string
	Caption  string
	HTML     string
	Markdown string
}

// PathLevel is one level of a hierarchy path. EndHeading is set when the
// level renders as a range, e.g. "제7조–제8조".
type PathLevel struct {
	Kind       NodeKind
	Number     string
	Title      string
	Heading    string
	EndNumber  string
	EndHeading string
}

// HierarchyPath locates a chunk within the document structure: the rendered
// breadcrumb plus structured per-level fields for metadata filtering.
type HierarchyPath struct {
	Rendered string
	Levels   []PathLevel
}

// Level returns the path level of the given kind, or nil when the document
// has no such level on this path.
func (p HierarchyPath) Level(kind NodeKind) *PathLevel {
	for i := range p.Levels {
		if p.Levels[i].Kind == kind {
			return &p.Levels[i]
		}
	}
	return nil
}

// SizeFlag marks a chunk that could not be fitted into the size band.
// Oversize chunks are atomic units that no split could reduce; undersize
// chunks are trailing remainders with no sibling left to merge with.
type SizeFlag string

const (
	SizeOK       SizeFlag = ""
	SizeUnderMin SizeFlag = "under_min"
	SizeOverMax  SizeFlag = "over_max"
)

// Chunking strategies recorded on each chunk.
const (
	StrategyStructure = "structure"
	StrategyGeneral   = "general"
)

// Chunk is one retrieval-ready text segment with its structural context.
type Chunk struct {
	ChunkID   string
	DocID     string
	Index     int // 1-based position within the document
	Total     int
	Text      string
	CharCount int // rune count of Text
	Path      HierarchyPath
	Nodes     NodeRange
	Start     int // byte offsets into the decoded source text
	End       int
	TableIDs  []string // encounter order, no duplicates
	SizeFlag  SizeFlag
	Strategy  string
}

// IndexLabel renders the chunk's position as "i/total".
func (c *Chunk) IndexLabel() string {
	return fmt.Sprintf("%d/%d", c.Index, c.Total)
}

// ProcessedDocument is the immutable result of chunking one document.
// Re-processing a document produces a new ProcessedDocument; existing ones
// are superseded, never mutated.
type ProcessedDocument struct {
	DocID    string
	Title    string
	Chapters int
	Articles int
	Chunks   []Chunk
	Tables   []TableRecord
}

// Table returns the record for the given id, or nil if unknown.
func (d *ProcessedDocument) Table(id string) *TableRecord {
	for i := range d.Tables {
		if d.Tables[i].TableID == id {
			return &d.Tables[i]
		}
	}
	return nil
}
