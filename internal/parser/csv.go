package parser

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVParser handles CSV files. The whole file becomes a single
// anchored table, so downstream chunking sees a caption instead of the
// raw rows.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Decoded, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var acc accumulator
	acc.table(records)
	return acc.result(titleFromFilename(filename)), nil
}
