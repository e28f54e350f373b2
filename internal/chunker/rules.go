package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kordocs/reggest/internal/doctree"
)

// Match describes a structural marker recognized at the start of a line.
type Match struct {
	Kind    doctree.NodeKind
	Heading string // marker as written, e.g. "제15조", "①", "가."
	Number  string // normalized number, e.g. "15", "15의2", "1", "가"
	Title   string // title text when the convention carries one
}

// Rule recognizes one hierarchy level's marker. Rules are pure functions of
// the line content; the parser applies them in priority order and takes the
// first match. New numbering conventions plug in as new rules without
// touching the parser's stack logic.
type Rule interface {
	Kind() doctree.NodeKind
	Match(line string) (Match, bool)
}

// DefaultRules returns the marker rules for Korean regulation documents,
// ordered chapter, article, paragraph, item.
func DefaultRules() []Rule {
	return []Rule{chapterRule{}, articleRule{}, paragraphRule{}, itemRule{}}
}

var (
	chapterRe  = regexp.MustCompile(`^제(\d+)장(?:\s+(.+))?$`)
	articleRe  = regexp.MustCompile(`^제(\d+)조(의\d+)?`)
	titleRe    = regexp.MustCompile(`^\s*\(([^)]*)\)`)
	numberedRe = regexp.MustCompile(`^(\d{1,3})\)(?:\s|$)`)
	itemRe     = regexp.MustCompile(`^([가나다라마바사아자차카타파하])\.(?:\s|$)`)
)

// chapterRule matches "제N장 제목" lines.
type chapterRule struct{}

func (chapterRule) Kind() doctree.NodeKind { return doctree.KindChapter }

func (chapterRule) Match(line string) (Match, bool) {
	m := chapterRe.FindStringSubmatch(line)
	if m == nil {
		return Match{}, false
	}
	return Match{
		Kind:    doctree.KindChapter,
		Heading: "제" + m[1] + "장",
		Number:  m[1],
		Title:   strings.TrimSpace(m[2]),
	}, true
}

// articleRule matches "제N조" and "제N조의M" markers, with an optional
// "(제목)" title. A bare reference like "제15조에" inside a sentence does
// not count: the marker must be followed by a title, whitespace, or end of
// line.
type articleRule struct{}

func (articleRule) Kind() doctree.NodeKind { return doctree.KindArticle }

func (articleRule) Match(line string) (Match, bool) {
	m := articleRe.FindStringSubmatch(line)
	if m == nil {
		return Match{}, false
	}
	heading := m[0]
	rest := line[len(heading):]
	title := ""
	if tm := titleRe.FindStringSubmatch(rest); tm != nil {
		title = strings.TrimSpace(tm[1])
	} else if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return Match{}, false
	}
	number := m[1]
	if m[2] != "" {
		number += m[2]
	}
	return Match{
		Kind:    doctree.KindArticle,
		Heading: heading,
		Number:  number,
		Title:   title,
	}, true
}

// paragraphRule matches circled-digit markers (①②③…) and the "N)" form.
type paragraphRule struct{}

func (paragraphRule) Kind() doctree.NodeKind { return doctree.KindParagraph }

func (paragraphRule) Match(line string) (Match, bool) {
	if line == "" {
		return Match{}, false
	}
	if n, ok := circledValue([]rune(line)[0]); ok {
		return Match{
			Kind:    doctree.KindParagraph,
			Heading: string([]rune(line)[0]),
			Number:  fmt.Sprintf("%d", n),
		}, true
	}
	if m := numberedRe.FindStringSubmatch(line); m != nil {
		return Match{
			Kind:    doctree.KindParagraph,
			Heading: m[1] + ")",
			Number:  m[1],
		}, true
	}
	return Match{}, false
}

// circledValue maps ①–⑳ and ㉑–㉟ to their numeric values.
func circledValue(r rune) (int, bool) {
	switch {
	case r >= '①' && r <= '⑳':
		return int(r-'①') + 1, true
	case r >= '㉑' && r <= '㉟':
		return int(r-'㉑') + 21, true
	}
	return 0, false
}

// itemRule matches "가." through "하." item markers.
type itemRule struct{}

func (itemRule) Kind() doctree.NodeKind { return doctree.KindItem }

func (itemRule) Match(line string) (Match, bool) {
	m := itemRe.FindStringSubmatch(line)
	if m == nil {
		return Match{}, false
	}
	return Match{
		Kind:    doctree.KindItem,
		Heading: m[1] + ".",
		Number:  m[1],
	}, true
}
