package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingsAndParagraphs(t *testing.T) {
	input := "# 제1장 총칙\n\n제1조 (목적) 이 규정은 기준을 정한다.\n\n제2조 (정의) 용어 정의.\n"
	p := &MarkdownParser{}
	d, err := p.Parse(strings.NewReader(input), "규정.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Title != "규정" {
		t.Errorf("expected title %q, got %q", "규정", d.Title)
	}
	want := "제1장 총칙\n\n제1조 (목적) 이 규정은 기준을 정한다.\n\n제2조 (정의) 용어 정의.\n"
	if d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}
}

func TestMarkdownParser_TableAnchor(t *testing.T) {
	input := "앞 문단.\n\n| 항목 | 금액 |\n| --- | --- |\n| 본봉 | 950 |\n\n뒤 문단.\n"
	p := &MarkdownParser{}
	d, err := p.Parse(strings.NewReader(input), "table.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "앞 문단.\n\n항목 금액\n본봉 950\n\n뒤 문단.\n"
	if d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}

	if len(d.Anchors) != 1 {
		t.Fatalf("expected 1 anchor, got %d", len(d.Anchors))
	}
	a := d.Anchors[0]
	if a.TableID != "t001" {
		t.Errorf("expected table id t001, got %q", a.TableID)
	}
	if body := d.Text[a.Offset : a.Offset+a.Length]; body != "항목 금액\n본봉 950" {
		t.Errorf("anchor span covers %q", body)
	}
	if a.Caption != "표 1: 2행 × 2열" {
		t.Errorf("unexpected caption %q", a.Caption)
	}
	if len(a.Grid) != 2 || a.Grid[0][0] != "항목" || a.Grid[1][1] != "950" {
		t.Errorf("unexpected grid %v", a.Grid)
	}
}

func TestMarkdownParser_CodeBlockKept(t *testing.T) {
	input := "인트로.\n\n```\nGET /v1/documents\n```\n"
	p := &MarkdownParser{}
	d, err := p.Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(d.Text, "GET /v1/documents") {
		t.Errorf("expected code block content in text, got %q", d.Text)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	d, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Text != "" {
		t.Errorf("expected empty text, got %q", d.Text)
	}
}
