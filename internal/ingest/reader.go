// Package ingest bulk-loads lineage entries from JSONL, CSV and XLSX files.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

const maxLineBytes = 4 << 20

// Record is one lineage entry to import. The source is named either by id or
// by its registered filename.
type Record struct {
	Table           string  `json:"table"`
	RecordID        int64   `json:"record_id"`
	SourceReportID  int64   `json:"source_report_id,omitempty"`
	SourceFilename  string  `json:"source_filename,omitempty"`
	PageNumber      int     `json:"page_number,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Row is one decoded input line. Raw holds the line as JSON for the
// dead-letter file. Err is set when the line could not be decoded.
type Row struct {
	Line   int
	Raw    []byte
	Record Record
	Err    error
}

// StreamFunc starts a row stream bound to ctx. Both channels are closed when
// the stream ends.
type StreamFunc func(ctx context.Context) (<-chan Row, <-chan error)

// ReadOptions configures file decoding.
type ReadOptions struct {
	// Format is jsonl, csv or xlsx. Empty picks by file extension.
	Format    string
	Delimiter rune   // csv only, default ','
	Charset   string // csv only, e.g. "windows-1252"; empty means UTF-8
	Sheet     string // xlsx only, default first sheet
}

// Open returns a StreamFunc for the file at path.
func Open(path string, opts ReadOptions) (StreamFunc, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch format {
	case "jsonl", "ndjson":
		return fileStream(path, func(ctx context.Context, r io.Reader, done func()) (<-chan Row, <-chan error) {
			return streamJSONL(ctx, r, done)
		}), nil
	case "csv":
		return fileStream(path, func(ctx context.Context, r io.Reader, done func()) (<-chan Row, <-chan error) {
			return streamCSV(ctx, r, opts, done)
		}), nil
	case "xlsx":
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrap(err, "ingest: open input")
		}
		return func(ctx context.Context) (<-chan Row, <-chan error) {
			return StreamXLSX(ctx, path, opts.Sheet)
		}, nil
	}
	return nil, eris.Errorf("ingest: unsupported input format %q", format)
}

func fileStream(path string, stream func(ctx context.Context, r io.Reader, done func()) (<-chan Row, <-chan error)) StreamFunc {
	return func(ctx context.Context) (<-chan Row, <-chan error) {
		f, err := os.Open(path)
		if err != nil {
			rowCh := make(chan Row)
			errCh := make(chan error, 1)
			errCh <- eris.Wrap(err, "ingest: open input")
			close(rowCh)
			close(errCh)
			return rowCh, errCh
		}
		return stream(ctx, f, func() { f.Close() }) //nolint:errcheck
	}
}

// StreamJSONL decodes one Record per line. Blank lines are skipped; lines
// that fail to decode are sent with Err set.
func StreamJSONL(ctx context.Context, r io.Reader) (<-chan Row, <-chan error) {
	return streamJSONL(ctx, r, func() {})
}

func streamJSONL(ctx context.Context, r io.Reader, done func()) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)
		defer done()

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)

		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}

			row := Row{Line: line, Raw: bytes.Clone(raw)}
			if err := json.Unmarshal(raw, &row.Record); err != nil {
				row.Err = eris.Wrapf(err, "ingest: decode line %d", line)
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
		if err := sc.Err(); err != nil {
			errCh <- eris.Wrapf(err, "ingest: read line %d", line+1)
		}
	}()

	return rowCh, errCh
}

// StreamCSV decodes rows keyed by a header line. Column names match the JSON
// field names of Record.
func StreamCSV(ctx context.Context, r io.Reader, opts ReadOptions) (<-chan Row, <-chan error) {
	return streamCSV(ctx, r, opts, func() {})
}

func streamCSV(ctx context.Context, r io.Reader, opts ReadOptions, done func()) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)
		defer done()

		if opts.Charset != "" && !strings.EqualFold(opts.Charset, "utf-8") {
			enc, err := htmlindex.Get(opts.Charset)
			if err != nil {
				errCh <- eris.Wrapf(err, "ingest: unsupported charset %q", opts.Charset)
				return
			}
			r = enc.NewDecoder().Reader(r)
		}

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		var header []string
		for {
			cells, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read csv row")
				return
			}
			line, _ := reader.FieldPos(0)

			if header == nil {
				header = normalizeHeader(cells)
				if err := checkHeader(header); err != nil {
					errCh <- err
					return
				}
				continue
			}
			if isBlank(cells) {
				continue
			}

			select {
			case rowCh <- tabularRow(line, header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// StreamXLSX decodes rows from one sheet (the first when sheet is empty).
// The first row is the header.
func StreamXLSX(ctx context.Context, path, sheet string) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "ingest: open xlsx")
			return
		}
		sh, err := getSheet(f, sheet)
		if err != nil {
			errCh <- err
			return
		}

		var header []string
		for i, row := range sh.Rows {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
			cells := rowToStrings(row)
			if header == nil {
				header = normalizeHeader(cells)
				if err := checkHeader(header); err != nil {
					errCh <- err
					return
				}
				continue
			}
			if isBlank(cells) {
				continue
			}

			select {
			case rowCh <- tabularRow(i+1, header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}
	return out
}

func checkHeader(header []string) error {
	has := make(map[string]bool, len(header))
	for _, h := range header {
		has[h] = true
	}
	var missing []string
	for _, col := range []string{"table", "record_id", "confidence_score"} {
		if !has[col] {
			missing = append(missing, col)
		}
	}
	if !has["source_report_id"] && !has["source_filename"] {
		missing = append(missing, "source_report_id or source_filename")
	}
	if len(missing) > 0 {
		return eris.Errorf("ingest: header missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// tabularRow maps header-keyed cells onto a Record.
func tabularRow(line int, header, cells []string) Row {
	fields := make(map[string]string, len(header))
	for i, h := range header {
		if h == "" || i >= len(cells) {
			continue
		}
		fields[h] = strings.TrimSpace(cells[i])
	}
	raw, _ := json.Marshal(fields)
	row := Row{Line: line, Raw: raw}

	var err error
	rec := &row.Record
	rec.Table = fields["table"]
	rec.SourceFilename = fields["source_filename"]
	if rec.RecordID, err = parseInt(fields, "record_id"); err != nil {
		row.Err = err
		return row
	}
	if rec.SourceReportID, err = parseInt(fields, "source_report_id"); err != nil {
		row.Err = err
		return row
	}
	page, err := parseInt(fields, "page_number")
	if err != nil {
		row.Err = err
		return row
	}
	rec.PageNumber = int(page)
	if s := fields["confidence_score"]; s != "" {
		if rec.ConfidenceScore, err = strconv.ParseFloat(s, 64); err != nil {
			row.Err = eris.Errorf("ingest: line %d: confidence_score %q is not a number", line, s)
		}
	} else {
		row.Err = eris.Errorf("ingest: line %d: confidence_score is empty", line)
	}
	return row
}

func parseInt(fields map[string]string, key string) (int64, error) {
	s := fields[key]
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Spreadsheet cells may render whole numbers as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, eris.Errorf("ingest: %s %q is not an integer", key, s)
		}
		n = int64(f)
	}
	return n, nil
}
