package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TabularAdapter reads CSV, TSV and XLSX tables. The first row is the header.
type TabularAdapter struct {
	source    config.Source
	delimiter rune // 0 sniffs among comma, semicolon and tab
	sheet     bool
}

func (a *TabularAdapter) Name() string {
	if a.sheet {
		return config.AdapterXLSX
	}
	if a.delimiter == '\t' {
		return config.AdapterTSV
	}
	return config.AdapterCSV
}

func (a *TabularAdapter) Read(ctx context.Context, path string, emit func(types.RawProduct), reject func(*InputFormatError)) error {
	var (
		rows [][]string
		err  error
	)
	if a.sheet || strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = readSheet(path)
	} else {
		rows, err = a.readDelimited(path, reject)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 || blankRow(rows[0]) {
		return &InputFormatError{Message: "file has no header row"}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if mapped, ok := a.source.ColumnMap[h]; ok {
			h = mapped
		}
		header[i] = h
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		rowNum := i + 1
		// Blank rows and rows already rejected by the reader are nil or empty.
		if blankRow(row) {
			continue
		}
		if !a.sheet && len(row) != len(header) {
			reject(&InputFormatError{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d cells, header has %d", len(row), len(header)),
			})
			continue
		}

		fields := make(map[string]any, len(header))
		for c, name := range header {
			if name == "" {
				continue
			}
			v := ""
			if c < len(row) {
				v = strings.TrimSpace(row[c])
			}
			fields[name] = v
		}
		emit(types.RawProduct{
			SourceID:  sourceID(fields, ""),
			Row:       rowNum,
			RawFields: fields,
			ImageRefs: imageRefs(fields, a.source.ImageRoles),
			FreeText:  freeText(fields),
		})
	}
	return nil
}

// readDelimited decodes the file (UTF-8, or Windows-1252 when the bytes are not valid UTF-8)
// and splits it into records. Malformed records are rejected and skipped.
func (a *TabularAdapter) readDelimited(path string, reject func(*InputFormatError)) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data, err = DecodeText(data)
	if err != nil {
		return nil, &InputFormatError{Message: "cannot decode text", Cause: err}
	}

	delim := a.delimiter
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		delim = '\t'
	}
	if delim == 0 {
		delim = SniffDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if len(rows) == 0 {
					return nil, &InputFormatError{Message: "malformed header row", Cause: err}
				}
				reject(&InputFormatError{Row: len(rows), Message: "malformed record", Cause: err})
				// Keep row numbering aligned with the records that follow.
				rows = append(rows, nil)
				continue
			}
			return nil, &InputFormatError{Message: "unreadable table", Cause: err}
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// DecodeText strips a UTF-8 byte order mark and converts Windows-1252 input to UTF-8.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// SniffDelimiter picks the most frequent of comma, semicolon and tab on the header line.
func SniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readSheet(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &InputFormatError{Message: "cannot open workbook", Cause: err}
	}
	defer func() { _ = f.Close() }()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, &InputFormatError{Message: "no sheets found in workbook"}
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &InputFormatError{Message: "failed to get rows", Cause: err}
	}
	return rows, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
