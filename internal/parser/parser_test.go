package parser

import (
	"strings"
	"testing"
)

func TestForFile_Routing(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"doc.txt", "*parser.TextParser"},
		{"doc.md", "*parser.MarkdownParser"},
		{"doc.markdown", "*parser.MarkdownParser"},
		{"doc.csv", "*parser.CSVParser"},
		{"doc.html", "*parser.HTMLParser"},
		{"doc.HTM", "*parser.HTMLParser"},
		{"doc.pdf", "*parser.PDFParser"},
		{"doc.docx", "*parser.DOCXParser"},
		{"규정.hwpx", "*parser.HWPXParser"},
	}
	for _, tt := range tests {
		p, err := ForFile(tt.filename)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.filename, err)
		}
		if got := typeName(p); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.filename, tt.want, got)
		}
	}
}

func typeName(p Parser) string {
	switch p.(type) {
	case *TextParser:
		return "*parser.TextParser"
	case *MarkdownParser:
		return "*parser.MarkdownParser"
	case *CSVParser:
		return "*parser.CSVParser"
	case *HTMLParser:
		return "*parser.HTMLParser"
	case *PDFParser:
		return "*parser.PDFParser"
	case *DOCXParser:
		return "*parser.DOCXParser"
	case *HWPXParser:
		return "*parser.HWPXParser"
	}
	return "unknown"
}

func TestForFile_Unsupported(t *testing.T) {
	if _, err := ForFile("archive.zip"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if IsSupportedExtension("archive.zip") {
		t.Error("zip should not be supported")
	}
	if !IsSupportedExtension("doc.hwpx") {
		t.Error("hwpx should be supported")
	}
}

func TestCSVParser_SingleAnchoredTable(t *testing.T) {
	input := "항목,금액\n본봉,950\n수당,120\n"
	p := &CSVParser{}
	d, err := p.Parse(strings.NewReader(input), "급여.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := "항목 금액\n본봉 950\n수당 120\n"; d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}
	if len(d.Anchors) != 1 {
		t.Fatalf("expected 1 anchor, got %d", len(d.Anchors))
	}
	a := d.Anchors[0]
	if a.Caption != "표 1: 3행 × 2열" {
		t.Errorf("unexpected caption %q", a.Caption)
	}
	if body := d.Text[a.Offset : a.Offset+a.Length]; body != "항목 금액\n본봉 950\n수당 120" {
		t.Errorf("anchor span covers %q", body)
	}
}

func TestCSVParser_EmptyInput(t *testing.T) {
	p := &CSVParser{}
	d, err := p.Parse(strings.NewReader(""), "empty.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Text != "" || len(d.Anchors) != 0 {
		t.Errorf("expected empty result, got text=%q anchors=%d", d.Text, len(d.Anchors))
	}
}
