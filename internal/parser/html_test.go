package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_BlocksTitleAndTable(t *testing.T) {
	input := `<html><head><title>연봉제 규정</title><script>var x = 1;</script></head>
<body>
<h1>제1장 총칙</h1>
<p>제1조 (목적) 이 규정은 기준을 정한다.</p>
<table>
<thead><tr><th>항목</th><th>금액</th></tr></thead>
<tbody><tr><td>본봉</td><td>950</td></tr></tbody>
</table>
<p>마지막 문단.</p>
</body></html>`

	p := &HTMLParser{}
	d, err := p.Parse(strings.NewReader(input), "doc.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Title != "연봉제 규정" {
		t.Errorf("expected title from <title>, got %q", d.Title)
	}
	want := "제1장 총칙\n\n제1조 (목적) 이 규정은 기준을 정한다.\n\n항목 금액\n본봉 950\n\n마지막 문단.\n"
	if d.Text != want {
		t.Errorf("expected %q, got %q", want, d.Text)
	}
	if strings.Contains(d.Text, "var x") {
		t.Errorf("script content leaked into text: %q", d.Text)
	}

	if len(d.Anchors) != 1 {
		t.Fatalf("expected 1 anchor, got %d", len(d.Anchors))
	}
	a := d.Anchors[0]
	if body := d.Text[a.Offset : a.Offset+a.Length]; body != "항목 금액\n본봉 950" {
		t.Errorf("anchor span covers %q", body)
	}
	if a.Caption != "표 1: 2행 × 2열" {
		t.Errorf("unexpected caption %q", a.Caption)
	}
}

func TestHTMLParser_TitleFallsBackToFilename(t *testing.T) {
	p := &HTMLParser{}
	d, err := p.Parse(strings.NewReader("<p>본문</p>"), "untitled.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "untitled" {
		t.Errorf("expected title %q, got %q", "untitled", d.Title)
	}
}
