package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// readRows reads a header row followed by data rows. Blank lines are
// skipped; short rows leave the missing columns empty.
func readRows(r io.Reader, delimiter string) ([]map[string]string, error) {
	br := bufio.NewReader(r)
	comma, err := pickDelimiter(br, delimiter)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		row := make(map[string]string, len(header))
		empty := true
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
				empty = empty && row[col] == ""
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
}

// pickDelimiter honors an explicit delimiter, else prefers ';' when the
// header line has more semicolons than commas (Spanish-locale exports).
func pickDelimiter(br *bufio.Reader, explicit string) (rune, error) {
	if explicit != "" {
		rs := []rune(explicit)
		if len(rs) != 1 {
			return 0, fmt.Errorf("delimiter must be one character, got %q", explicit)
		}
		return rs[0], nil
	}
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	if bytes.Count(peek, []byte(";")) > bytes.Count(peek, []byte(",")) {
		return ';', nil
	}
	return ',', nil
}
