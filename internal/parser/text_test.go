package parser

import (
	"strings"
	"testing"
)

func TestTextParser_PreservesLinesAndBlanks(t *testing.T) {
	input := "제1조 (목적)\r\n이 규정은 기준을 정한다.\r\n\r\n제2조 (정의)\r\n용어 정의."
	p := &TextParser{}
	d, err := p.Parse(strings.NewReader(input), "규정.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Title != "규정" {
		t.Errorf("expected title %q, got %q", "규정", d.Title)
	}
	want := "제1조 (목적)\n이 규정은 기준을 정한다.\n\n제2조 (정의)\n용어 정의.\n"
	if d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}
	if len(d.Anchors) != 0 {
		t.Errorf("expected no anchors from plain text, got %d", len(d.Anchors))
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	d, err := p.Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Text != "" {
		t.Errorf("expected empty text, got %q", d.Text)
	}
}

func TestTextParser_IndentationTrimmed(t *testing.T) {
	input := "  제1조 (목적)\n\t본문."
	p := &TextParser{}
	d, err := p.Parse(strings.NewReader(input), "doc.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "제1조 (목적)\n본문.\n"; d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}
}
