package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. The stream is kept as-is apart
// from line-ending and Unicode normalization: blank lines and marker
// lines are what downstream structure parsing works from.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Decoded, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lines = append(lines, clean(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}

	return &Decoded{
		Title: titleFromFilename(filename),
		Text:  text,
	}, nil
}
