package chunker

import (
	"fmt"

	"github.com/kordocs/reggest/internal/doctree"
)

// StructureParseError reports unrecoverable input corruption: offsets that
// cannot be reconciled with the document text. Ordinary irregularities
// (numbering gaps, markers out of order, no markers at all) never raise it;
// they degrade through the parser's fallback rules instead.
type StructureParseError struct {
	Offset int
	Reason string
}

func (e *StructureParseError) Error() string {
	return fmt.Sprintf("structure parse failed at offset %d: %s", e.Offset, e.Reason)
}

// EmptyDocumentError reports input with no text content.
type EmptyDocumentError struct{}

func (e *EmptyDocumentError) Error() string {
	return "document has no text content"
}

// TableReferenceError reports a table reference that cannot be resolved to
// exactly one registry entry: a dangling table_id or one owned twice.
// It aborts assembly of the whole document.
type TableReferenceError struct {
	TableID string
	Reason  string
}

func (e *TableReferenceError) Error() string {
	return fmt.Sprintf("table reference %q: %s", e.TableID, e.Reason)
}

// Assembly invariants checked in Assemble.
const (
	InvariantCoverage  = "coverage"
	InvariantPathOrder = "path_order"
	InvariantTables    = "table_resolution"
)

// ValidationError reports a broken assembly invariant together with the
// offending chunk range. Assembly is all-or-nothing; a document that fails
// validation produces no chunk list at all.
type ValidationError struct {
	Invariant string
	Index     int // 0-based candidate position
	Start     int // byte offsets of the offending range
	End       int
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invariant %s broken at chunk %d [%d:%d): %s",
		e.Invariant, e.Index, e.Start, e.End, e.Reason)
}

// SizeBandViolation describes a chunk whose final length falls outside the
// configured band. Oversize violations are atomic units no split could
// reduce; undersize ones are remainders with no sibling left to merge.
// Violations are reported, not raised: the chunk is still emitted, flagged.
type SizeBandViolation struct {
	ChunkID   string
	CharCount int
	Flag      doctree.SizeFlag
}

// SizeViolations collects the flagged chunks of a processed document for
// reporting.
func SizeViolations(doc *doctree.ProcessedDocument) []SizeBandViolation {
	var out []SizeBandViolation
	for i := range doc.Chunks {
		c := &doc.Chunks[i]
		if c.SizeFlag != doctree.SizeOK {
			out = append(out, SizeBandViolation{
				ChunkID:   c.ChunkID,
				CharCount: c.CharCount,
				Flag:      c.SizeFlag,
			})
		}
	}
	return out
}
