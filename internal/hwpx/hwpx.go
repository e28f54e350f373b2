// Package hwpx decodes HWPX word-processor documents: a zip container
// holding one or more section XML streams. The decoder produces the plain
// text stream in document order with each table's body spliced in at its
// position, plus the table anchors the chunking pipeline consumes.
package hwpx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kordocs/reggest/internal/doctree"
)

// Decoded is the decoder output for one document.
type Decoded struct {
	Text    string
	Anchors []doctree.TableAnchor
}

// Decode reads an HWPX container and extracts its section text in order.
func Decode(r io.ReaderAt, size int64) (*Decoded, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open hwpx container: %w", err)
	}
	sections := sectionFiles(zr)
	if len(sections) == 0 {
		return nil, fmt.Errorf("hwpx: no Contents/section*.xml entries")
	}

	d := &decoder{}
	for _, f := range sections {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = d.section(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}
	}
	return &Decoded{Text: d.text.String(), Anchors: d.anchors}, nil
}

// sectionFiles returns the Contents/section*.xml entries in numeric order.
func sectionFiles(zr *zip.Reader) []*zip.File {
	var files []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "Contents/section") && strings.HasSuffix(f.Name, ".xml") {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return sectionIndex(files[i].Name) < sectionIndex(files[j].Name)
	})
	return files
}

func sectionIndex(name string) int {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "Contents/section"), ".xml")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

type decoder struct {
	text    strings.Builder
	anchors []doctree.TableAnchor
	tables  int
}

// section walks one section's XML token stream. Paragraph text becomes one
// line per paragraph; a table interrupts the current paragraph and splices
// its body into the stream at that point. Element names are matched without
// their namespace prefix.
func (d *decoder) section(r io.Reader) error {
	dec := xml.NewDecoder(r)
	var para strings.Builder
	inPara := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse section xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara++
			case "tbl":
				if para.Len() > 0 {
					d.line(para.String())
					para.Reset()
				}
				if err := d.table(dec); err != nil {
					return err
				}
			case "t":
				if inPara > 0 {
					var s string
					if err := dec.DecodeElement(&s, &t); err != nil {
						return fmt.Errorf("parse text run: %w", err)
					}
					para.WriteString(s)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inPara > 0 {
				inPara--
				if inPara == 0 {
					d.line(para.String())
					para.Reset()
				}
			}
		}
	}
	if para.Len() > 0 {
		d.line(para.String())
	}
	return nil
}

// table consumes a tbl subtree, collecting the cell grid, and splices the
// body into the text stream with an anchor. Nested tables flatten into the
// enclosing cell.
func (d *decoder) table(dec *xml.Decoder) error {
	var grid [][]string
	var row []string
	var cell strings.Builder
	inCell := 0
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("parse table xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					inCell++
					cell.Reset()
				}
			case "t":
				if inCell > 0 {
					var s string
					if err := dec.DecodeElement(&s, &t); err != nil {
						return fmt.Errorf("parse cell text: %w", err)
					}
					if cell.Len() > 0 && s != "" {
						cell.WriteString(" ")
					}
					cell.WriteString(s)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				depth--
			case "tr":
				if depth == 1 && row != nil {
					grid = append(grid, row)
				}
			case "tc":
				if depth == 1 && inCell > 0 {
					row = append(row, clean(cell.String()))
					inCell--
				}
			}
		}
	}
	d.splice(grid)
	return nil
}

// splice writes the table body into the text stream and records its anchor.
// The anchor span covers the body exactly; the line break after it stays
// outside so caption substitution leaves well-formed lines behind.
func (d *decoder) splice(grid [][]string) {
	if len(grid) == 0 {
		return
	}
	d.tables++
	id := fmt.Sprintf("t%03d", d.tables)
	cols := 0
	for _, r := range grid {
		if len(r) > cols {
			cols = len(r)
		}
	}
	caption := fmt.Sprintf("표 %d: %d행 × %d열", d.tables, len(grid), cols)

	var body strings.Builder
	for i, r := range grid {
		if i > 0 {
			body.WriteString("\n")
		}
		body.WriteString(strings.Join(r, " "))
	}

	off := d.text.Len()
	d.text.WriteString(body.String())
	d.text.WriteString("\n")
	d.anchors = append(d.anchors, doctree.TableAnchor{
		TableID: id,
		Offset:  off,
		Length:  body.Len(),
		Grid:    grid,
		Caption: caption,
	})
}

// line appends one cleaned paragraph line to the text stream.
func (d *decoder) line(s string) {
	s = clean(s)
	if s == "" {
		return
	}
	d.text.WriteString(s)
	d.text.WriteString("\n")
}

// clean trims surrounding whitespace and NFC-normalizes a text run; HWPX
// files occasionally carry decomposed jamo.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
