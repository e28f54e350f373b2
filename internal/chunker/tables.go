package chunker

import (
	"html"
	"slices"
	"strings"

	"github.com/kordocs/reggest/internal/doctree"
)

// BuildRegistry renders the tree's anchored tables into the document's
// table registry. A table id anchored twice is fatal.
func BuildRegistry(tree *doctree.Tree) ([]doctree.TableRecord, error) {
	var recs []doctree.TableRecord
	seen := make(map[string]bool, len(tree.Tables))
	for i := range tree.Tables {
		a := &tree.Tables[i]
		if seen[a.TableID] {
			return nil, &TableReferenceError{TableID: a.TableID, Reason: "table id anchored twice"}
		}
		seen[a.TableID] = true
		recs = append(recs, doctree.TableRecord{
			TableID:  a.TableID,
			Owner:    a.Owner,
			Grid:     a.Grid,
			Caption:  a.Caption,
			HTML:     RenderHTML(a.Grid),
			Markdown: RenderMarkdown(a.Grid),
		})
	}
	return recs, nil
}

// Resolve attaches each anchored table to the first candidate covering its
// anchor offset and swaps the table body out of every candidate's text,
// leaving the caption in the owning chunk. Each table id ends up referenced
// by exactly one chunk; a reference that does not resolve in the registry
// aborts the document.
func Resolve(tree *doctree.Tree, cands []Candidate, registry []doctree.TableRecord) error {
	if len(tree.Tables) == 0 {
		return nil
	}
	reg := make(map[string]bool, len(registry))
	for i := range registry {
		if reg[registry[i].TableID] {
			return &TableReferenceError{TableID: registry[i].TableID, Reason: "duplicate registry entry"}
		}
		reg[registry[i].TableID] = true
	}

	owner := make(map[string]int, len(tree.Tables))
	for i := range tree.Tables {
		a := &tree.Tables[i]
		if !reg[a.TableID] {
			return &TableReferenceError{TableID: a.TableID, Reason: "anchored table missing from registry"}
		}
		oc := -1
		for c := range cands {
			if cands[c].Start <= a.Offset && a.Offset < cands[c].End {
				oc = c
				break
			}
		}
		if oc < 0 {
			return &TableReferenceError{TableID: a.TableID, Reason: "anchor not covered by any chunk"}
		}
		owner[a.TableID] = oc
		if !slices.Contains(cands[oc].TableIDs, a.TableID) {
			cands[oc].TableIDs = append(cands[oc].TableIDs, a.TableID)
		}
	}

	for i := range cands {
		cands[i].Text = substitute(tree, &cands[i], owner, i)
	}
	return nil
}

// substitute rebuilds a candidate's text with table bodies removed: the
// owning chunk gets the caption in the body's place, any other chunk whose
// span clips into the body gets nothing.
func substitute(tree *doctree.Tree, c *Candidate, owner map[string]int, idx int) string {
	var b strings.Builder
	pos := c.Start
	for i := range tree.Tables {
		a := &tree.Tables[i]
		bs, be := a.Offset, a.Offset+a.Length
		if be <= c.Start || bs >= c.End {
			continue
		}
		b.WriteString(tree.Source[pos:max(bs, c.Start)])
		if owner[a.TableID] == idx {
			b.WriteString(a.Caption)
		}
		pos = min(be, c.End)
	}
	b.WriteString(tree.Source[pos:c.End])
	return b.String()
}

// RenderHTML renders a cell grid as a semantic HTML table, first row as
// header.
func RenderHTML(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for _, cell := range grid[0] {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(cell))
		b.WriteString("</th>")
	}
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for _, row := range grid[1:] {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

// RenderMarkdown renders a cell grid as a pipe table, first row as header.
func RenderMarkdown(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for _, cell := range row {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(cell, "|", "\\|"))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	writeRow(grid[0])
	b.WriteString("|")
	for range grid[0] {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range grid[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}
