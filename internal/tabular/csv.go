package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts raw file bytes to UTF-8, honouring UTF-8 and UTF-16
// byte-order marks and falling back to Latin-1 for invalid UTF-8. It returns
// the detected encoding name.
func DecodeText(data []byte) ([]byte, string, error) {
	name := "utf-8"
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		name = "utf-8-bom"
	case bytes.HasPrefix(data, bomUTF16LE):
		name = "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		name = "utf-16be"
	case !utf8.Valid(data):
		name = "latin-1"
	}

	fallback := unicode.UTF8.NewDecoder()
	if name == "latin-1" {
		fallback = charmap.ISO8859_1.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return nil, "", fmt.Errorf("tabular: decode %s: %w", name, err)
	}
	return out, name, nil
}

// ReadCSV reads a whole CSV document into a Grid. Rows may have differing
// field counts; LoadRows pads or truncates them against the header.
func ReadCSV(r io.Reader) (Grid, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tabular: read csv: %w", err)
	}
	decoded, _, err := DecodeText(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid Grid
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tabular: parse csv: %w", err)
		}
		grid = append(grid, rec)
	}
	return grid, nil
}
