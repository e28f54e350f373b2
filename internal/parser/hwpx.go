package parser

import (
	"bytes"
	"io"

	"github.com/kordocs/reggest/internal/hwpx"
)

// HWPXParser handles .hwpx files via the container decoder.
type HWPXParser struct{}

func (p *HWPXParser) Parse(r io.Reader, filename string) (*Decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	d, err := hwpx.Decode(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	return &Decoded{
		Title:   titleFromFilename(filename),
		Text:    d.Text,
		Anchors: d.Anchors,
	}, nil
}
