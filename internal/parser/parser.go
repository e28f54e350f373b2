// Package parser decodes uploaded document files into normalized plain
// text. Structure is recovered later from the text itself, so decoders
// only need to preserve line boundaries and report where tables were
// spliced into the stream.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kordocs/reggest/internal/doctree"
)

// Decoded is the output of a format decoder: the document title, the
// normalized text stream, and anchors for any tables found in the file.
// Anchor offsets are byte positions into Text.
type Decoded struct {
	Title   string
	Text    string
	Anchors []doctree.TableAnchor
}

// Parser converts raw document bytes into normalized text.
type Parser interface {
	Parse(r io.Reader, filename string) (*Decoded, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".hwpx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".hwpx":
		return &HWPXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// accumulator builds normalized document text block by block and
// records table anchors with byte-accurate offsets. Normalization
// happens per block, never on the finished string, so recorded offsets
// stay valid.
type accumulator struct {
	text    strings.Builder
	anchors []doctree.TableAnchor
	tables  int
}

// block appends a paragraph or heading, separated from the previous
// block by a blank line. Empty blocks are dropped.
func (a *accumulator) block(s string) {
	s = clean(s)
	if s == "" {
		return
	}
	a.sep()
	a.text.WriteString(s)
	a.text.WriteString("\n")
}

// table splices a table body into the stream and records its anchor.
// The anchor covers the body rows only, not the trailing newline, so
// later caption substitution keeps the line structure intact.
func (a *accumulator) table(grid [][]string) {
	var rows [][]string
	cols := 0
	for _, row := range grid {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, clean(c))
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, cells)
		if len(cells) > cols {
			cols = len(cells)
		}
	}
	if len(rows) == 0 {
		return
	}

	a.tables++
	id := fmt.Sprintf("t%03d", a.tables)
	caption := fmt.Sprintf("표 %d: %d행 × %d열", a.tables, len(rows), cols)

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " ")
	}
	body := strings.Join(lines, "\n")

	a.sep()
	offset := a.text.Len()
	a.text.WriteString(body)
	a.text.WriteString("\n")

	a.anchors = append(a.anchors, doctree.TableAnchor{
		TableID: id,
		Offset:  offset,
		Length:  len(body),
		Grid:    rows,
		Caption: caption,
	})
}

func (a *accumulator) sep() {
	if a.text.Len() > 0 {
		a.text.WriteString("\n")
	}
}

func (a *accumulator) result(title string) *Decoded {
	return &Decoded{Title: title, Text: a.text.String(), Anchors: a.anchors}
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
